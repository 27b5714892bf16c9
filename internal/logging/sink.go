// pattern: Imperative Shell

package logging

import (
	"encoding/json"
	"sync"
	"time"
)

// RingSink implements zapcore.WriteSyncer and keeps the most recent parsed
// log entries in a fixed-size ring. When full, the oldest entry is overwritten.
type RingSink struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingSink creates a ring sink holding at most size entries.
func NewRingSink(size int) *RingSink {
	if size <= 0 {
		size = 1
	}
	return &RingSink{entries: make([]LogEntry, size)}
}

// Write implements io.Writer. It parses the JSON log line from zap and stores
// it. Lines that do not parse are dropped without failing the logger.
func (s *RingSink) Write(p []byte) (int, error) {
	// Parse outside the lock; parseEntry has no shared state.
	entry, err := parseEntry(p)
	if err != nil {
		return len(p), nil
	}

	s.mu.Lock()
	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	s.mu.Unlock()

	return len(p), nil
}

// Sync implements zapcore.WriteSyncer. No-op for the ring.
func (s *RingSink) Sync() error {
	return nil
}

// Len returns the number of stored entries.
func (s *RingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return len(s.entries)
	}
	return s.next
}

// Recent returns up to limit entries matching scopePrefix, oldest first.
// A limit <= 0 returns every matching entry.
func (s *RingSink) Recent(scopePrefix string, limit int) []LogEntry {
	s.mu.Lock()
	ordered := make([]LogEntry, 0, len(s.entries))
	if s.full {
		ordered = append(ordered, s.entries[s.next:]...)
	}
	ordered = append(ordered, s.entries[:s.next]...)
	s.mu.Unlock()

	matched := make([]LogEntry, 0, len(ordered))
	for _, e := range ordered {
		if e.MatchesScope(scopePrefix) {
			matched = append(matched, e)
		}
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// parseEntry converts JSON log data from zap into a LogEntry.
func parseEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Fields:    make(map[string]any),
	}

	if msg, ok := raw["msg"].(string); ok {
		entry.Message = msg
		delete(raw, "msg")
	}

	if level, ok := raw["level"].(string); ok {
		entry.Level = ParseLevel(level)
		delete(raw, "level")
	} else {
		entry.Level = "INFO"
	}

	if logger, ok := raw["logger"].(string); ok {
		entry.Scope = logger
		delete(raw, "logger")
	} else {
		entry.Scope = "app"
	}

	// Preserve nanosecond precision of the epoch timestamp
	if ts, ok := raw["ts"].(float64); ok {
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * 1e9)
		entry.Timestamp = time.Unix(sec, nsec)
		delete(raw, "ts")
	}

	delete(raw, "caller")
	delete(raw, "stacktrace")

	for k, v := range raw {
		entry.Fields[k] = v
	}

	return entry, nil
}
