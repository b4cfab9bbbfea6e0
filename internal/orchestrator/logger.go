package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// pkgLogger is the package-level debug logger used by orchestrator components.
var pkgLogger *DebugLogger
var pkgLoggerMu sync.RWMutex

// setPackageLogger sets the package-level logger.
func setPackageLogger(l *DebugLogger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = l
}

// debugLog writes a message using the package-level logger.
// This is used by components that don't have direct access to the orchestrator's logger.
func debugLog(format string, args ...interface{}) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()

	if l != nil {
		l.Log(format, args...)
	}
}

// DebugLogger writes orchestrator diagnostics through logrus.
type DebugLogger struct {
	logger *logrus.Logger
	file   *os.File
}

// NewDebugLogger creates a logger writing to the specified path at the given level.
// If the path is empty, returns a no-op logger.
func NewDebugLogger(logPath, level string) (*DebugLogger, error) {
	if logPath == "" {
		return NopLogger(), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{logger: newLogrus(f, level), file: f}
	l.logger.Info("=== orchestrator debug log started ===")
	return l, nil
}

// NewWriterLogger logs to w. Useful for tests and stderr output.
func NewWriterLogger(w io.Writer, level string) *DebugLogger {
	return &DebugLogger{logger: newLogrus(w, level)}
}

// NewDebugLoggerForRepo creates a debug logger in the repo's .qforge/logs directory.
// Returns a no-op logger if the directory cannot be created.
func NewDebugLoggerForRepo(repoPath, level string) *DebugLogger {
	logPath := filepath.Join(repoPath, ".qforge", "logs", "orchestrator-debug.log")
	logger, err := NewDebugLogger(logPath, level)
	if err != nil {
		return NopLogger()
	}
	return logger
}

func newLogrus(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.DebugLevel
	}
	l.SetLevel(lvl)
	return l
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a debug-level message.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Debugf(format, args...)
}

// Warn writes a warning-level message.
func (l *DebugLogger) Warn(format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Warnf(format, args...)
}

// WithFields returns a logrus entry for structured messages, or nil for a no-op logger.
func (l *DebugLogger) WithFields(fields logrus.Fields) *logrus.Entry {
	if l == nil || l.logger == nil {
		return nil
	}
	return l.logger.WithFields(fields)
}

// Close closes the log file.
// Safe to call on nil logger or logger without file.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
