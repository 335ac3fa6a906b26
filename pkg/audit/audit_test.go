package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)

	if err := l.LogSuccess(OpAdd, "github/alice"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := l.LogError(OpGet, "github/bob"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	events, err := l.Events()
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Operation != OpAdd || events[0].Result != ResultSuccess || events[0].Detail != "github/alice" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Operation != OpGet || events[1].Result != ResultError {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if events[0].Timestamp == "" {
		t.Error("event missing timestamp")
	}
}

func TestLogFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)
	if err := l.Log(OpInit, ResultSuccess, ""); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat log: %v", err)
	}
	if info.Mode().Perm() != FileMode {
		t.Errorf("expected mode %o, got %o", FileMode, info.Mode().Perm())
	}
}

func TestDisabledLogger(t *testing.T) {
	l := NewLogger("")

	if err := l.LogSuccess(OpAdd, "github/alice"); err != nil {
		t.Fatalf("disabled logger returned an error: %v", err)
	}
	events, err := l.Events()
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if events != nil {
		t.Errorf("disabled logger returned events: %v", events)
	}
}

func TestEventsSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)
	if err := l.Log(OpList, ResultSuccess, ""); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, FileMode)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	if _, err := f.WriteString("not json at all\n"); err != nil {
		t.Fatalf("failed to append garbage: %v", err)
	}
	f.Close()
	if err := l.Log(OpDelete, ResultSuccess, ""); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := l.Events()
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 parseable events, got %d", len(events))
	}
}

func TestEventsMissingFile(t *testing.T) {
	l := NewLogger(filepath.Join(t.TempDir(), "never-written.log"))
	events, err := l.Events()
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if events != nil {
		t.Errorf("expected no events, got %v", events)
	}
}

func TestLogLinesAreJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l := NewLogger(path)
	if err := l.LogSuccess(OpExport, "3 records"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Errorf("log line not newline-terminated JSON: %q", data)
	}
	if strings.Count(string(data), "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", data)
	}
}
