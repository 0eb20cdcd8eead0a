package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	initWithWriter(&buf, "warn", "json")
	t.Cleanup(func() { defaultLogger = nil })

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines at warn level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["message"] != "warn 3" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	initWithWriter(&buf, "verbose", "json")
	t.Cleanup(func() { defaultLogger = nil })

	Debug("hidden")
	Info("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line emitted at default info level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("info line missing")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	initWithWriter(&buf, "info", "text")
	t.Cleanup(func() { defaultLogger = nil })

	Info("run %s finished", "r1")
	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
	if !strings.Contains(out, "run r1 finished") {
		t.Errorf("message missing from %q", out)
	}
}

func TestUninitializedIsSilent(t *testing.T) {
	defaultLogger = nil
	Info("no logger configured")
}
