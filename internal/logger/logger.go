// Package logger provides structured logging for the PDF translator.
// It exposes a package-level API with typed fields, backed by zap.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key-value pair attached to a log message.
type Field = zapcore.Field

// String creates a string field
func String(key, value string) Field { return zap.String(key, value) }

// Int creates an integer field
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 creates an int64 field
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Float64 creates a float64 field
func Float64(key string, value float64) Field { return zap.Float64(key, value) }

// Bool creates a boolean field
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Err creates an error field
func Err(err error) Field { return zap.Error(err) }

// Any creates a field with any value
func Any(key string, value interface{}) Field { return zap.Any(key, value) }

var (
	mu     sync.RWMutex
	global = newZap(false)
)

func newZap(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic("failed to initialize logging: " + err.Error())
	}
	return l
}

// Init reconfigures the package logger. debug enables debug-level output.
func Init(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	global = newZap(debug)
}

// SetLogger replaces the package logger. Intended for tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Debug logs a debug message with optional fields
func Debug(msg string, fields ...Field) { get().Debug(msg, fields...) }

// Info logs an informational message with optional fields
func Info(msg string, fields ...Field) { get().Info(msg, fields...) }

// Warn logs a warning message with the causing error and optional fields
func Warn(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	get().Warn(msg, fields...)
}

// Error logs an error message with the causing error and optional fields
func Error(msg string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	get().Error(msg, fields...)
}

// Sync flushes buffered log entries.
func Sync() error { return get().Sync() }
