// Package audit provides an append-only operation log for the vault.
//
// Events record which operation ran and how it ended, never any secret
// material: no passwords, no derived keys, no decrypted values. Logging
// is best-effort; an audit failure must never fail the operation itself.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Operation types for audit events.
const (
	OpInit   = "vault.init"
	OpAdd    = "credential.add"
	OpGet    = "credential.get"
	OpDelete = "credential.delete"
	OpList   = "credential.list"
	OpExport = "vault.export"
	OpImport = "vault.import"
	OpRotate = "vault.rotate"
)

// Outcomes of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// FileMode restricts the log to the owning user.
const FileMode = 0600

// Event is a single audit record, serialized as one JSON line.
type Event struct {
	Timestamp string `json:"ts"`               // RFC 3339, UTC
	Operation string `json:"op"`               // operation type
	Result    string `json:"result"`           // success | error
	Detail    string `json:"detail,omitempty"` // non-secret context, e.g. service/username
}

// Logger appends events to a JSON-lines file.
type Logger struct {
	path    string
	mu      sync.Mutex
	enabled bool
}

// NewLogger returns a logger writing to path. A disabled logger (empty
// path) silently drops every event, which keeps call sites unconditional.
func NewLogger(path string) *Logger {
	return &Logger{path: path, enabled: path != ""}
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Log appends one event. Detail must never contain secret material; call
// sites pass at most the (service, username) pair.
func (l *Logger) Log(op, result, detail string) error {
	if !l.enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	event := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Operation: op,
		Result:    result,
		Detail:    detail,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, FileMode)
	if err != nil {
		return fmt.Errorf("audit: failed to open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, detail string) error {
	return l.Log(op, ResultSuccess, detail)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, detail string) error {
	return l.Log(op, ResultError, detail)
}

// Events reads back all recorded events, oldest first. Unparseable lines
// are skipped rather than failing the read.
func (l *Logger) Events() ([]Event, error) {
	if !l.enabled {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: failed to read log: %w", err)
	}

	var events []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var e Event
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			events = append(events, e)
		}
	}
	return events, nil
}
