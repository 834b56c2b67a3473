package logger

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry is one attributed log line kept for the interactive view.
type LogEntry struct {
	Timestamp time.Time
	Source    string // "registry", "broker", "robot-3", or "system"
	Level     string // INFO, WARN, ERROR, or empty
	Message   string
}

// LogBuffer is a thread-safe ring of the most recent entries.
type LogBuffer struct {
	entries []LogEntry
	maxSize int
	mu      sync.RWMutex
}

// NewLogBuffer creates a new log buffer
func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry, dropping the oldest once maxSize is exceeded.
func (lb *LogBuffer) Add(source, level, message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, LogEntry{
		Timestamp: time.Now(),
		Source:    source,
		Level:     level,
		Message:   message,
	})

	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[len(lb.entries)-lb.maxSize:]
	}
}

// GetRecent returns the most recent log entries
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if count > len(lb.entries) {
		count = len(lb.entries)
	}
	if count < 0 {
		count = 0
	}

	result := make([]LogEntry, count)
	copy(result, lb.entries[len(lb.entries)-count:])
	return result
}

// GetAll returns all log entries
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, len(lb.entries))
	copy(result, lb.entries)
	return result
}

// BySource returns every buffered entry written by source, oldest first.
func (lb *LogBuffer) BySource(source string) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	var result []LogEntry
	for _, e := range lb.entries {
		if e.Source == source {
			result = append(result, e)
		}
	}
	return result
}

// Clear removes all log entries from the buffer
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = make([]LogEntry, 0, lb.maxSize)
}

// FormatLogEntry formats a log entry for display
func FormatLogEntry(entry LogEntry) string {
	if entry.Level != "" {
		return fmt.Sprintf("[%s] %s %s: %s",
			entry.Timestamp.Format("15:04:05"),
			entry.Level,
			entry.Source,
			entry.Message,
		)
	}
	return fmt.Sprintf("[%s] %s: %s",
		entry.Timestamp.Format("15:04:05"),
		entry.Source,
		entry.Message,
	)
}
