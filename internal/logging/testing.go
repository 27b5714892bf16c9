// pattern: Imperative Shell

package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NopLogger returns a logger that discards all output.
// Use in tests or when logging is not configured.
func NopLogger() *ScopedLogger {
	return &ScopedLogger{
		slog:  nil, // nil slog means all logging is no-op
		zap:   nil,
		scope: "",
	}
}

// TestLogManager provides a LoggerProvider suitable for tests.
// It writes to an in-memory ring only (no file) for easy verification.
type TestLogManager struct {
	ring    *RingSink
	baseZap *zap.Logger
	loggers map[string]*ScopedLogger
	mu      sync.RWMutex
}

// NewTestLogManager creates a log manager for testing that keeps the last
// bufferSize entries in memory.
func NewTestLogManager(bufferSize int) *TestLogManager {
	ring := NewRingSink(bufferSize)

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(jsonEncoderConfig()),
		ring,
		zapcore.DebugLevel,
	)

	return &TestLogManager{
		ring:    ring,
		baseZap: zap.New(core),
		loggers: make(map[string]*ScopedLogger),
	}
}

// For returns a scoped logger for the given scope name.
// Named For() to match the production Manager API.
func (m *TestLogManager) For(scope string) *ScopedLogger {
	m.mu.RLock()
	if logger, ok := m.loggers[scope]; ok {
		m.mu.RUnlock()
		return logger
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[scope]; ok {
		return logger
	}

	logger := newScopedLogger(m.baseZap, scope, zapcore.DebugLevel)
	m.loggers[scope] = logger
	return logger
}

// Recent implements RecentProvider.
func (m *TestLogManager) Recent(scopePrefix string, limit int) []LogEntry {
	return m.ring.Recent(scopePrefix, limit)
}

// Entries returns every entry currently held, oldest first.
func (m *TestLogManager) Entries() []LogEntry {
	return m.ring.Recent("", 0)
}

// HasMessage reports whether any held entry's message contains substr.
func (m *TestLogManager) HasMessage(substr string) bool {
	for _, e := range m.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Close closes the test log manager.
func (m *TestLogManager) Close() error {
	_ = m.baseZap.Sync()
	return nil
}
