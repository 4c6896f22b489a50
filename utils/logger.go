package utils

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/awantoch/edgebridge/constants"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	userLogger     *log.Logger
	internalLogger *zap.SugaredLogger
	level          = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggerMu       sync.RWMutex
)

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

func init() {
	userLogger = log.New(os.Stdout, "", 0)
	if os.Getenv(constants.EnvDebug) != "" {
		level.SetLevel(zapcore.DebugLevel)
	}
	setInternal(zapcore.Lock(os.Stderr))
}

func setInternal(ws zapcore.WriteSyncer) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), ws, level)

	loggerMu.Lock()
	internalLogger = zap.New(core).Sugar()
	loggerMu.Unlock()
}

func internal() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return internalLogger
}

// User prints a plain line for CLI users.
func User(format string, v ...any) {
	userLogger.Printf(format, v...)
}

func Info(format string, v ...any)  { internal().Infof(format, v...) }
func Warn(format string, v ...any)  { internal().Warnf(format, v...) }
func Error(format string, v ...any) { internal().Errorf(format, v...) }
func Debug(format string, v ...any) { internal().Debugf(format, v...) }

// SetUserOutput redirects User output; nil restores stdout.
func SetUserOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	userLogger = log.New(w, "", 0)
}

// SetInternalOutput redirects internal logs; nil restores stderr.
func SetInternalOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	setInternal(zapcore.AddSync(w))
}

// SetMode switches between "debug" and any other (info) mode.
func SetMode(mode string) {
	if mode == "debug" {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// SetLevel parses a zap level name ("debug", "info", "warn", "error").
// An empty name leaves the level unchanged.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(l)
	return nil
}

// Level returns the current internal log level.
func Level() string {
	return level.Level().String()
}

// Sync flushes buffered internal logs.
func Sync() {
	_ = internal().Sync()
}

// Errorf logs the error message and returns it as an error value.
func Errorf(format string, v ...any) error {
	err := fmt.Errorf(format, v...)
	internal().Errorf("%s", err)
	return err
}

// LoggerWriter adapts a logging function to io.Writer, one call per
// non-empty line.
type LoggerWriter struct {
	Fn     func(string, ...any)
	Prefix string
}

func (w *LoggerWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.Fn("%s%s", w.Prefix, line)
	}
	return len(p), nil
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, requestIDKey, reqID)
}

// RequestIDFromContext extracts the request ID from context, if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(requestIDKey).(string)
	return s, ok
}

func withRequestID(ctx context.Context, fields []any) []any {
	if reqID, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, "request_id", reqID)
	}
	return fields
}

// InfoCtx logs an info message with context, including request ID if present.
func InfoCtx(ctx context.Context, msg string, fields ...any) {
	internal().Infow(msg, withRequestID(ctx, fields)...)
}

// WarnCtx logs a warning message with context, including request ID if present.
func WarnCtx(ctx context.Context, msg string, fields ...any) {
	internal().Warnw(msg, withRequestID(ctx, fields)...)
}

// ErrorCtx logs an error message with context, including request ID if present.
func ErrorCtx(ctx context.Context, msg string, fields ...any) {
	internal().Errorw(msg, withRequestID(ctx, fields)...)
}

// DebugCtx logs a debug message with context, including request ID if present.
func DebugCtx(ctx context.Context, msg string, fields ...any) {
	internal().Debugw(msg, withRequestID(ctx, fields)...)
}
