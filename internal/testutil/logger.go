package testutil

import (
	"fmt"
	"strings"
	"sync"

	"eni-go/internal/eni"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// RecordingLogger captures log calls so tests can assert on them.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ eni.Logger = (*RecordingLogger)(nil)

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Entries returns a copy of everything logged so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Has reports whether a message containing substr was logged at level.
func (l *RecordingLogger) Has(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}

// String renders the captured log, one entry per line, for failure output.
func (l *RecordingLogger) String() string {
	var b strings.Builder
	for _, e := range l.Entries() {
		fmt.Fprintf(&b, "%s\t%s\t%v\n", e.Level, e.Msg, e.Args)
	}
	return b.String()
}
