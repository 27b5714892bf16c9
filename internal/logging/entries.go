// pattern: Functional Core

package logging

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// LogEntry is one parsed log line, as served by GET /api/logs.
type LogEntry struct {
	Timestamp time.Time      `json:"ts"`
	Level     string         `json:"level"` // DEBUG, INFO, WARN, ERROR
	Scope     string         `json:"scope"` // e.g. "repo", "web"
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// String returns a human-readable representation of the log entry.
func (e LogEntry) String() string {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(e.Level)
	sb.WriteString(" ")
	sb.WriteString("[")
	sb.WriteString(e.Scope)
	sb.WriteString("] ")
	sb.WriteString(e.Message)

	// Sorted keys keep the rendering stable
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		fmt.Fprintf(&sb, " %s=%v", k, e.Fields[k])
	}

	return sb.String()
}

// MatchesScope returns true if the entry's scope starts with the given prefix.
// An empty prefix matches all entries.
func (e LogEntry) MatchesScope(prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(e.Scope, prefix)
}

// ParseLevel normalizes a log level string to uppercase.
// Returns "INFO" for unknown levels.
func ParseLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug":
		return "DEBUG"
	case "info":
		return "INFO"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}
