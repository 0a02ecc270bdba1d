package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSetGlobalAndGlobal(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	l := DefaultLogger()
	SetGlobal(l)

	if got := Global(); got != l {
		t.Error("Global should return the logger passed to SetGlobal")
	}
}

func TestConfigure(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	l := Configure("debug", "text")
	if l == nil {
		t.Fatal("Configure returned nil")
	}
	if got := l.GetLevel(); got != LevelDebug {
		t.Errorf("level = %v, want LevelDebug", got)
	}
	if Global() != l {
		t.Error("Configure should install the logger as global")
	}
}

func TestGlobalLevelHelpers(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	tests := []struct {
		name     string
		log      func()
		expected string
	}{
		{"debug", func() { Debug("m") }, "debug"},
		{"debugf", func() { Debugf("m", map[string]any{"key": "val"}) }, "debug"},
		{"info", func() { Info("m") }, "info"},
		{"infof", func() { Infof("m", map[string]any{"key": "val"}) }, "info"},
		{"warn", func() { Warn("m") }, "warn"},
		{"warnf", func() { Warnf("m", map[string]any{"key": "val"}) }, "warn"},
		{"error", func() { Error("m") }, "error"},
		{"errorf", func() { Errorf("m", map[string]any{"key": "val"}) }, "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetGlobal(New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf}))

			tc.log()

			var entry Entry
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse JSON: %v", err)
			}
			if entry.Level != tc.expected {
				t.Errorf("level = %q, want %q", entry.Level, tc.expected)
			}
		})
	}
}

func TestGlobalLoggerInitialized(t *testing.T) {
	if Global() == nil {
		t.Fatal("global logger should be initialized at package load")
	}
}
