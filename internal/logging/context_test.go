package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestWithCorrelationIDCtx(t *testing.T) {
	ctx := context.Background()
	ctx = WithCorrelationIDCtx(ctx, "corr-123")

	got := CorrelationIDFromCtx(ctx)
	if got != "corr-123" {
		t.Errorf("CorrelationIDFromCtx() = %q, want %q", got, "corr-123")
	}
}

func TestCorrelationIDFromCtxEmpty(t *testing.T) {
	got := CorrelationIDFromCtx(context.Background())
	if got != "" {
		t.Errorf("CorrelationIDFromCtx() = %q, want empty string", got)
	}
}

func TestWithLoggerCtx(t *testing.T) {
	l := DefaultLogger()
	ctx := WithLoggerCtx(context.Background(), l)

	if got := FromCtx(ctx); got != l {
		t.Error("FromCtx should return the logger attached to the context")
	}
}

func TestFromCtxWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf}))
	defer SetGlobal(DefaultLogger())

	ctx := WithCorrelationIDCtx(context.Background(), "ctx-corr")
	FromCtx(ctx).Info("hello")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.CorrelationID != "ctx-corr" {
		t.Errorf("correlationId = %q, want %q", entry.CorrelationID, "ctx-corr")
	}
}

func TestFromCtxWithNoContextValues(t *testing.T) {
	l := FromCtx(context.Background())
	if l == nil {
		t.Fatal("FromCtx should fall back to the global logger")
	}
	if l != Global() {
		t.Error("FromCtx without context values should return the global logger")
	}
}

func TestContextPropagationAcrossLayers(t *testing.T) {
	var buf bytes.Buffer
	SetGlobal(New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf}))
	defer SetGlobal(DefaultLogger())

	// Outer layer attaches a correlation ID, inner layers log through the
	// context without knowing about it.
	ctx := WithCorrelationIDCtx(context.Background(), "batch-42")

	process := func(ctx context.Context) {
		FromCtx(ctx).Infof("processed", map[string]any{"offset": 7})
	}
	process(ctx)

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.CorrelationID != "batch-42" {
		t.Errorf("correlationId = %q, want %q", entry.CorrelationID, "batch-42")
	}
	if got := entry.Fields["offset"]; got != float64(7) {
		t.Errorf("fields[offset] = %v, want 7", got)
	}
}
