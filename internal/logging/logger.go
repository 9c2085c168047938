package logging

import (
	"log"
	"os"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

func init() {
	debugEnabled.Store(os.Getenv("DEBUG") == "true")
}

// SetDebug turns debug output on or off, overriding the DEBUG env var
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether Debug messages are printed
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Warn logs a recoverable problem (always shown)
func Warn(subsystem, format string, args ...any) {
	log.Printf("[%s] WARNING: "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message (only shown if DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
	}
}

// Truncate truncates a string to maxLen and adds ellipsis
func Truncate(s string, maxLen int) string {
	// Replace newlines with spaces for one-line logs
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
