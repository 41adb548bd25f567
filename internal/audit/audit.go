// Package audit records module lifecycle events.
// Events are stored as JSON Lines (JSONL) files, one per module.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/firefly-engineering/modhost/internal/config"
	"github.com/firefly-engineering/modhost/internal/logging"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventInstallStarted     EventType = "install_started"
	EventInstalled          EventType = "installed"
	EventInstallFailed      EventType = "install_failed"
	EventCompensationFailed EventType = "compensation_failed"
	EventUninstalled        EventType = "uninstalled"
	EventUninstallFailed    EventType = "uninstall_failed"
	EventReconciled         EventType = "reconciled"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
	InstallID string    `json:"installId,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Recorder accepts events without reporting failure to the caller.
type Recorder interface {
	Record(event Event)
}

// Logger writes and reads audit events for modules.
// Events are stored in {dir}/{module}.events.jsonl.
type Logger struct {
	mu  sync.Mutex
	dir string
}

// NewLogger creates a new audit logger rooted at dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// eventPath returns the path to the JSONL event log for a module.
func (l *Logger) eventPath(module string) (string, error) {
	if err := config.ValidateModuleID(module); err != nil {
		return "", err
	}
	return config.SafePath(l.dir, module, ".events.jsonl")
}

// Record logs the event and drops any error after noting it at debug level.
func (l *Logger) Record(event Event) {
	if err := l.Log(event); err != nil {
		logging.Debug("audit write failed", "module", event.Module, "type", event.Type, "error", err)
	}
}

// Log appends an event to the module's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	path, err := l.eventPath(event.Module)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// Events reads all events for a module in chronological order.
func (l *Logger) Events(module string) ([]Event, error) {
	path, err := l.eventPath(module)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Memory keeps events in memory; used by tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record stores the event.
func (m *Memory) Record(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of the recorded events, optionally filtered by module.
func (m *Memory) Events(module string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if module == "" || e.Module == module {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Recorder = (*Logger)(nil)
	_ Recorder = (*Memory)(nil)
)
