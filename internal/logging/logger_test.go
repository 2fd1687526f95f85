package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse JSON %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"invalid", LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseLevel(tc.input); got != tc.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("text") != FormatText {
		t.Error("expected text format")
	}
	if ParseFormat("json") != FormatJSON || ParseFormat("bogus") != FormatJSON {
		t.Error("expected JSON format as default")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.Infof("node created", map[string]any{"path": "/a/b", "attempt": 2})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e[KeyMessage] != "node created" {
		t.Errorf("message = %v", e[KeyMessage])
	}
	if e[KeyLevel] != "info" {
		t.Errorf("level = %v", e[KeyLevel])
	}
	if e["path"] != "/a/b" {
		t.Errorf("path = %v", e["path"])
	}
	if e["attempt"] != float64(2) {
		t.Errorf("attempt = %v", e["attempt"])
	}
	if _, ok := e[KeyTimestamp]; !ok {
		t.Error("timestamp missing")
	}
}

func TestLoggerErrorFieldsRenderMessage(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.Errorf("delete failed", map[string]any{"error": errors.New("boom")})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["error"] != "boom" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	buf.Reset()
	l.SetLevel(LevelDebug)
	if l.GetLevel() != LevelDebug {
		t.Fatal("SetLevel did not apply")
	}
	l.Debug("debug")
	if len(decodeLines(t, &buf)) != 1 {
		t.Error("debug entry should be written after SetLevel")
	}
}

func TestLoggerWithDoesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Output: &buf})
	child := base.With(map[string]any{"component": "bridge"}).WithCorrelationID("corr-1")

	child.Info("from child")
	base.Info("from base")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["component"] != "bridge" || entries[0][KeyCorrelationID] != "corr-1" {
		t.Errorf("child entry missing fields: %v", entries[0])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Errorf("base entry should not carry child fields: %v", entries[1])
	}
	if _, ok := entries[1][KeyCorrelationID]; ok {
		t.Errorf("base entry should not carry correlation ID: %v", entries[1])
	}
}

func TestLoggerCaller(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})
	l.Info("no caller")
	l.SetAddCaller(true)
	l.Info("with caller")

	entries := decodeLines(t, &buf)
	if _, ok := entries[0][KeyCaller]; ok {
		t.Error("caller should be absent by default")
	}
	caller, _ := entries[1][KeyCaller].(string)
	if !strings.Contains(caller, "logger_test.go") {
		t.Errorf("caller = %q, want logger_test.go", caller)
	}
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})
	l.Infof("watch attached", map[string]any{"path": "/w"})

	out := buf.String()
	if !strings.Contains(out, "watch attached") || !strings.Contains(out, "/w") {
		t.Errorf("unexpected text output: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("text format should not be JSON")
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error("nothing")
}

func TestConfigureSetsGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	l := Configure("debug", "text")
	if Global() != l {
		t.Fatal("Configure should install the global logger")
	}
	if l.GetLevel() != LevelDebug {
		t.Errorf("level = %v, want debug", l.GetLevel())
	}
	if Or(nil) != l {
		t.Error("Or(nil) should return the global logger")
	}
	other := Nop()
	if Or(other) != other {
		t.Error("Or should prefer the given logger")
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Output: &buf})

	ctx := WithCorrelationIDCtx(context.Background(), "ctx-corr")
	ctx = WithFieldsCtx(ctx, map[string]any{"session": "s-1", "path": "/a"})
	ctx = WithFieldsCtx(ctx, map[string]any{"path": "/a/b"})
	if CorrelationIDFromCtx(ctx) != "ctx-corr" {
		t.Fatal("correlation ID not stored in context")
	}

	ContextLogger(ctx, base).Info("scoped")

	entries := decodeLines(t, &buf)
	e := entries[0]
	if e[KeyCorrelationID] != "ctx-corr" || e["session"] != "s-1" || e["path"] != "/a/b" {
		t.Errorf("context values missing from entry: %v", e)
	}
}

func TestWithFieldsCtxDoesNotMutateParent(t *testing.T) {
	parent := WithFieldsCtx(context.Background(), map[string]any{"k": "outer"})
	_ = WithFieldsCtx(parent, map[string]any{"k": "inner"})
	if FieldsFromCtx(parent)["k"] != "outer" {
		t.Error("child context overwrote the parent's fields")
	}
	if FieldsFromCtx(context.Background()) != nil {
		t.Error("empty context should carry no fields")
	}
}

func TestSetGlobalIgnoresNil(t *testing.T) {
	prev := Global()
	SetGlobal(nil)
	if Global() != prev {
		t.Error("SetGlobal(nil) replaced the global logger")
	}
}

func TestContextLoggerPrefersContextLogger(t *testing.T) {
	var ctxBuf, baseBuf bytes.Buffer
	fromCtx := New(Config{Level: LevelInfo, Output: &ctxBuf})
	base := New(Config{Level: LevelInfo, Output: &baseBuf})

	ctx := WithLoggerCtx(context.Background(), fromCtx)
	if LoggerFromCtx(ctx) != fromCtx {
		t.Fatal("LoggerFromCtx should return the stored logger")
	}
	ContextLogger(ctx, base).Info("routed")

	if ctxBuf.Len() == 0 || baseBuf.Len() != 0 {
		t.Error("entry should go to the context logger")
	}
	if LoggerFromCtx(context.Background()) != nil {
		t.Error("LoggerFromCtx should be nil without a logger")
	}
}
