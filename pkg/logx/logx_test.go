package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	t.Cleanup(func() { SetWriter(nil) })
	return &buf
}

func TestLogFormat(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("classifier").Info("Routed %s", "query")

	output := buf.String()
	if !strings.Contains(output, "[classifier]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO: Routed query") {
		t.Errorf("Expected level and message in output, got: %s", output)
	}
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z]") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestDebugRespectsSwitch(t *testing.T) {
	buf := captureOutput(t)
	SetDebug(false)
	t.Cleanup(func() { SetDebug(false) })

	logger := NewLogger("workflow")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output written while disabled: %q", buf.String())
	}

	SetDebug(true)
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "DEBUG: visible") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}

func TestDomainFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetDebug(true, "data")
	t.Cleanup(func() { SetDebug(false) })

	ctx := WithRequestID(context.Background(), "req-1")
	Debug(ctx, "research", "skipped")
	Debug(ctx, "data", "kept %d", 1)

	out := buf.String()
	if strings.Contains(out, "skipped") {
		t.Errorf("research domain should be filtered: %q", out)
	}
	if !strings.Contains(out, "[req-1]") || !strings.Contains(out, "[data] kept 1") {
		t.Errorf("expected data line with request id, got %q", out)
	}
}

func TestBufferKeepsRecentEntries(t *testing.T) {
	b := &InMemoryLogBuffer{maxSize: 2}
	for _, msg := range []string{"a", "b", "c"} {
		b.AddLogEntry(&LogEntry{Timestamp: time.Now().UTC().Format(timestampFormat), Component: "x", Message: msg})
	}

	entries := b.GetLogEntries("", time.Time{})
	if len(entries) != 2 || entries[0].Message != "b" || entries[1].Message != "c" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if got := b.GetLogEntries("other", time.Time{}); len(got) != 0 {
		t.Fatalf("component filter failed: %+v", got)
	}
}
