package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got := ParseLevel(tc.input)
			if got != tc.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	if got := ParseLevel("bogus"); got != LevelInfo {
		t.Errorf("ParseLevel(bogus) = %v, want LevelInfo", got)
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(42), "unknown"},
	}

	for _, tc := range tests {
		if got := tc.level.String(); got != tc.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if got := ParseFormat("text"); got != FormatText {
		t.Errorf("ParseFormat(text) = %v, want FormatText", got)
	}
	if got := ParseFormat("json"); got != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, want FormatJSON", got)
	}
	if got := ParseFormat("bogus"); got != FormatJSON {
		t.Errorf("ParseFormat(bogus) = %v, want FormatJSON", got)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.Info("hello")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.Level != "info" {
		t.Errorf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "hello" {
		t.Errorf("message = %q, want %q", entry.Message, "hello")
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	l.Debug("nope")
	l.Info("nope")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	l.Warn("yes")
	if buf.Len() == 0 {
		t.Error("expected output at warn level")
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelError, Format: FormatJSON, Output: &buf})

	l.Info("nope")
	if buf.Len() != 0 {
		t.Fatal("expected no output at info when level is error")
	}

	l.SetLevel(LevelInfo)
	if got := l.GetLevel(); got != LevelInfo {
		t.Errorf("GetLevel() = %v, want LevelInfo", got)
	}
	l.Info("yes")
	if buf.Len() == 0 {
		t.Error("expected output after lowering level")
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.With(map[string]any{"topic": "orders"}).Info("consumed")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got := entry.Fields["topic"]; got != "orders" {
		t.Errorf("fields[topic] = %v, want %q", got, "orders")
	}
}

func TestLoggerWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.WithCorrelationID("corr-123").Info("hello")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.CorrelationID != "corr-123" {
		t.Errorf("correlationId = %q, want %q", entry.CorrelationID, "corr-123")
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})

	l.WithCorrelationID("corr-123").Infof("hello", map[string]any{"topic": "orders"})

	output := buf.String()
	if !strings.Contains(output, "[info]") {
		t.Errorf("text output should contain level, got %q", output)
	}
	if !strings.Contains(output, "hello") {
		t.Errorf("text output should contain message, got %q", output)
	}
	if !strings.Contains(output, "correlationId=corr-123") {
		t.Errorf("text output should contain correlationId, got %q", output)
	}
	if !strings.Contains(output, "topic=orders") {
		t.Errorf("text output should contain fields, got %q", output)
	}
}

func TestLoggerLeveledFieldVariants(t *testing.T) {
	tests := []struct {
		name     string
		log      func(l *Logger)
		expected string
	}{
		{"debugf", func(l *Logger) { l.Debugf("m", map[string]any{"k": "v"}) }, "debug"},
		{"infof", func(l *Logger) { l.Infof("m", map[string]any{"k": "v"}) }, "info"},
		{"warnf", func(l *Logger) { l.Warnf("m", map[string]any{"k": "v"}) }, "warn"},
		{"errorf", func(l *Logger) { l.Errorf("m", map[string]any{"k": "v"}) }, "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})
			tc.log(l)

			var entry Entry
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("output is not valid JSON: %v", err)
			}
			if entry.Level != tc.expected {
				t.Errorf("level = %q, want %q", entry.Level, tc.expected)
			}
			if got := entry.Fields["k"]; got != "v" {
				t.Errorf("fields[k] = %v, want v", got)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	l := DefaultLogger()
	if l == nil {
		t.Fatal("DefaultLogger returned nil")
	}
	if got := l.GetLevel(); got != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", got)
	}
}

func TestLoggerWithDoesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	_ = l.With(map[string]any{"extra": "field"})
	l.Info("plain")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := entry.Fields["extra"]; ok {
		t.Error("With must not mutate the original logger")
	}
}

func TestLoggerWithCorrelationIDDoesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	_ = l.WithCorrelationID("corr-123")
	l.Info("plain")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.CorrelationID != "" {
		t.Errorf("correlationId = %q, want empty", entry.CorrelationID)
	}
}
