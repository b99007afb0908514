// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package log provides the structured logger used by every component.
// Messages are JSON encoded by zap and carry key-value pairs along with
// well-known fields pulled from the context (the orchestration run id
// and the document id).
package log

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DebugLevel logs are typically voluminous.
	DebugLevel = zapcore.DebugLevel
	// InfoLevel is the default logging priority.
	InfoLevel = zapcore.InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel = zapcore.WarnLevel
	// ErrorLevel logs are high-priority.
	ErrorLevel = zapcore.ErrorLevel
	// RFC3339TrailingNano is RFC3339 format with trailing nanoseconds precision.
	RFC3339TrailingNano = "2006-01-02T15:04:05.000000000Z07:00"
	// LevelEnvVar is the environment variable used to override the logging level.
	LevelEnvVar = "LOG_LEVEL"
)

// contextFields maps a logged field name to the context key that holds it.
var contextFields = map[string]interface{}{
	"runID":      runIDKey,
	"documentID": documentIDKey,
}

var levels = map[string]zapcore.Level{
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(name string) (zapcore.Level, bool) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	return lvl, ok
}

// Logger is a leveled, context-aware structured logger.
type Logger struct {
	core          *zap.SugaredLogger
	defaultFields []interface{}
	byLevel       map[zapcore.Level]func(msg string, keysAndValues ...interface{})
	now           func() time.Time
}

// Config configures a Logger built by NewLogger.
type Config struct {
	// OutputPaths lists zap sinks; stderr when empty.
	OutputPaths []string
	// Level is the minimum level logged. LOG_LEVEL overrides it.
	Level zapcore.Level
}

// NewLogger creates a logger that writes JSON lines to the configured outputs.
func NewLogger(config Config, defaultFields ...interface{}) *Logger {
	core, err := newConfig(config).Build(zap.AddCallerSkip(2))
	if err != nil {
		panic(err)
	}
	return newLogger(core.Sugar(), defaultFields)
}

// NewLoggerFromCore returns a logger writing to core. Tests use it with
// an observer core to assert on emitted entries.
func NewLoggerFromCore(core zapcore.Core) *Logger {
	return newLogger(zap.New(core).Sugar(), nil)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return newLogger(zap.NewNop().Sugar(), nil)
}

// OrNop returns l, or a no-op logger if l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func newLogger(core *zap.SugaredLogger, defaultFields []interface{}) *Logger {
	l := &Logger{core: core, defaultFields: defaultFields, now: time.Now}
	l.byLevel = map[zapcore.Level]func(string, ...interface{}){
		DebugLevel: core.Debugw,
		InfoLevel:  core.Infow,
		WarnLevel:  core.Warnw,
		ErrorLevel: core.Errorw,
	}
	return l
}

// With returns a logger that adds the given key-value pairs to every message.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := append(append([]interface{}{}, l.defaultFields...), keysAndValues...)
	n := newLogger(l.core, fields)
	n.now = l.now
	return n
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, keysAndValues []interface{}) {
	t := l.now()
	keysAndValues = append(keysAndValues, l.defaultFields...)
	if len(keysAndValues)%2 != 0 {
		dangling := keysAndValues[len(keysAndValues)-1]
		keysAndValues = keysAndValues[:len(keysAndValues)-1]
		l.byLevel[ErrorLevel]("Ignored key without a value.", "caller", caller(), "ts", t, "ignored", dangling)
	}
	prefix := []interface{}{"caller", caller(), "ts", t}
	if ctx != nil {
		for k, key := range contextFields {
			if v := ctx.Value(key); v != nil {
				prefix = append(prefix, k, v)
			}
		}
	}
	l.byLevel[level](msg, append(prefix, keysAndValues...)...)
}

// Debug logs msg with the context fields of ctx and the given key-value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.log(ctx, DebugLevel, msg, keysAndValues)
}

// Debugf logs a formatted message with the context fields of ctx.
func (l *Logger) Debugf(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Info logs msg with the context fields of ctx and the given key-value pairs.
func (l *Logger) Info(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.log(ctx, InfoLevel, msg, keysAndValues)
}

// Infof logs a formatted message with the context fields of ctx.
func (l *Logger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, InfoLevel, fmt.Sprintf(format, args...), nil)
}

// Warn logs msg with the context fields of ctx and the given key-value pairs.
func (l *Logger) Warn(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.log(ctx, WarnLevel, msg, keysAndValues)
}

// Warnf logs a formatted message with the context fields of ctx.
func (l *Logger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, WarnLevel, fmt.Sprintf(format, args...), nil)
}

// Error logs msg with the context fields of ctx and the given key-value pairs.
func (l *Logger) Error(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.log(ctx, ErrorLevel, msg, keysAndValues)
}

// Errorf logs a formatted message with the context fields of ctx.
func (l *Logger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.core.Sync()
}

func rfc3339TrailingNanoTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(RFC3339TrailingNano))
}

func newConfig(override Config) zap.Config {
	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(InfoLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     rfc3339TrailingNanoTimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if override.OutputPaths != nil {
		config.OutputPaths = override.OutputPaths
	}
	config.Level = zap.NewAtomicLevelAt(override.Level)
	if lvl, ok := ParseLevel(os.Getenv(LevelEnvVar)); ok {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	return config
}

// caller reports the file:line of the code that called a Logger method.
func caller() string {
	pc := make([]uintptr, 1)
	if runtime.Callers(4, pc) < 1 {
		return ""
	}
	frame, _ := runtime.CallersFrames(pc).Next()
	if frame.PC == 0 {
		return ""
	}
	parts := strings.Split(frame.File, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], frame.Line)
}
