package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Event is one line of the audit trail.
type Event struct {
	At         string `json:"at"`
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Outcome    string `json:"outcome"`
	RequestID  string `json:"request_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Logger appends events as JSON lines. A nil Logger or an empty path drops
// events.
type Logger struct {
	path    string
	mu      sync.Mutex
	nowFunc func() time.Time
}

func NewLogger(path string) *Logger {
	return &Logger{path: path, nowFunc: time.Now}
}

func (l *Logger) Log(e Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.At == "" {
		e.At = l.nowFunc().UTC().Format(time.RFC3339)
	}
	if e.Actor == "" {
		e.Actor = "anonymous"
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}
