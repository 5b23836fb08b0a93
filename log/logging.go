// Package log provides the structured logger used by the test kit. When the
// process runs in CI (the "CI" environment variable is set) or in kubernetes
// ("KUBERNETES_SERVICE_HOST"), logs are written as json. Otherwise they are
// written in a single line readable format.
//
// Set LOG_LEVEL to one of the following values to only retrieve entries at
// that level and above. The default is INFO in CI and DEBUG locally.
//
// FATAL
// ERROR
// WARN
// INFO
// DEBUG
package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

func init() {
	logger = newLogger(os.LookupEnv)
}

func newLogger(lookup func(string) (string, bool)) *zap.SugaredLogger {
	var config zap.Config

	_, inCI := lookup("CI")
	_, inKubernetes := lookup("KUBERNETES_SERVICE_HOST")
	if inCI || inKubernetes {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	if value, ok := lookup("LOG_LEVEL"); ok {
		if level, ok := parseLevel(value); ok {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	l, err := config.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func parseLevel(value string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	}
	return zapcore.InfoLevel, false
}

// SetLogger replaces the package logger and returns a function restoring the
// previous one.
func SetLogger(l *zap.Logger) func() {
	mu.Lock()
	defer mu.Unlock()

	previous := logger
	logger = l.Sugar()
	return func() {
		mu.Lock()
		logger = previous
		mu.Unlock()
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs a message with some additional context.
func Debug(msg string, keysAndValues ...interface{}) {
	current().Debugw(msg, keysAndValues...)
}

// Info logs a message with some additional context.
func Info(msg string, keysAndValues ...interface{}) {
	current().Infow(msg, keysAndValues...)
}

// Warn logs a message with some additional context.
func Warn(msg string, keysAndValues ...interface{}) {
	current().Warnw(msg, keysAndValues...)
}

// Error logs a message with some additional context.
func Error(msg string, keysAndValues ...interface{}) {
	current().Errorw(msg, keysAndValues...)
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}
