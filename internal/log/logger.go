// Package log provides structured logging for tarsier using zap.
package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with tarsier-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance. It defaults to a no-op logger so
	// library packages can log before Init runs (and under test).
	L    = NewNop()
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Step logs a pipeline step transition.
func (l *Logger) Step(state, detail string) {
	l.Info("step",
		zap.String("state", state),
		zap.String("detail", detail),
	)
}

// FieldFound logs that the scanner recovered a credential field. The
// value itself is never logged, only its length.
func (l *Logger) FieldFound(name string, valueLen int) {
	l.Debug("field",
		zap.String("name", name),
		zap.Int("len", valueLen),
	)
}

// Field helpers for common patterns.

// Args renders a command argument list as a single field.
func Args(args []string) zap.Field {
	return zap.String("args", strings.Join(args, " "))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Pid creates a process id field.
func Pid(pid int) zap.Field {
	return zap.Int("pid", pid)
}

// Offset formats a memory offset as hex.
func Offset(off uint64) zap.Field {
	return zap.String("offset", Hex(off))
}

// Hex formats a uint64 as hex string for logging.
func Hex(v uint64) string {
	return "0x" + hexString(v)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
