package reflex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vthunder/grass/internal/logging"
)

// LogFile is the JSONL file dispatch entries are appended to
const LogFile = "dispatch_log.jsonl"

// LogEntry represents a single fired or failed reaction
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Concepts     []string      `json:"concepts"` // event concepts that were dispatched
	Reaction     string        `json:"reaction"`
	Task         string        `json:"task"`
	Score        float64       `json:"score"`
	Output       string        `json:"output,omitempty"`
	Success      bool          `json:"success"`
	Duration     time.Duration `json:"duration,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
}

// Log maintains a short-term ordered log of dispatches
type Log struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
	path    string // directory for persistent storage, empty for memory only
}

// NewLog creates an in-memory log with the given capacity
func NewLog(maxSize int) *Log {
	return &Log{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// NewLogWithPath creates a log with persistent storage
func NewLogWithPath(maxSize int, statePath string) *Log {
	l := NewLog(maxSize)
	l.path = statePath
	return l
}

// AddEntry records a dispatch
func (l *Log) AddEntry(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}

	if l.path != "" {
		l.appendToDisk(entry)
	}
}

// appendToDisk appends a single entry to the JSONL log file
func (l *Log) appendToDisk(entry LogEntry) {
	if err := os.MkdirAll(l.path, 0755); err != nil {
		logging.Debug("reflex", "Log dir unavailable: %v", err)
		return
	}
	f, err := os.OpenFile(filepath.Join(l.path, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Debug("reflex", "Log file unavailable: %v", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	f.Write(append(data, '\n'))
}

// Load loads recent entries from disk
func (l *Log) Load() error {
	if l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(l.path, LogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read dispatch log: %w", err)
	}

	var entries []LogEntry
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, entry)
	}

	if len(entries) > l.maxSize {
		entries = entries[len(entries)-l.maxSize:]
	}
	l.entries = entries
	return nil
}

// splitLines splits byte data into lines (handles both \n and \r\n)
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			end := i
			if end > start && data[end-1] == '\r' {
				end--
			}
			lines = append(lines, data[start:end])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// GetRecent returns the N most recent entries
func (l *Log) GetRecent(n int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	result := make([]LogEntry, n)
	copy(result, l.entries[len(l.entries)-n:])
	return result
}

// GetAll returns all entries
func (l *Log) GetAll() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

// Stats returns log statistics
func (l *Log) Stats() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := map[string]int{
		"total_entries": len(l.entries),
		"successes":     0,
		"failures":      0,
	}
	for _, e := range l.entries {
		if e.Success {
			stats["successes"]++
		} else {
			stats["failures"]++
		}
	}
	return stats
}
