// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fwlog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger Logger = NewZapLogger(os.Stderr, LevelInfo)

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

type zapLogger struct {
	level  zap.AtomicLevel
	out    io.Writer
	skip   int
	fields []any
	sugar  *zap.SugaredLogger
}

// NewZapLogger returns a JSON logger writing to w. The level can be changed
// later through SetLevel without rebuilding the logger.
func NewZapLogger(w io.Writer, lv Level) Logger {
	// Skip the package-level helper and the interface method.
	l := &zapLogger{level: zap.NewAtomicLevelAt(lv.toZapLevel()), skip: 2}
	l.build(w)
	return l
}

func (l *zapLogger) build(w io.Writer) {
	l.out = w
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), l.level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(l.skip))
	l.sugar = base.Sugar().With(l.fields...)
}

func (l *zapLogger) Debugf(format string, v ...any) { l.sugar.Debugf(format, v...) }
func (l *zapLogger) Infof(format string, v ...any)  { l.sugar.Infof(format, v...) }
func (l *zapLogger) Warnf(format string, v ...any)  { l.sugar.Warnf(format, v...) }
func (l *zapLogger) Errorf(format string, v ...any) { l.sugar.Errorf(format, v...) }
func (l *zapLogger) Fatalf(format string, v ...any) { l.sugar.Fatalf(format, v...) }

func (l *zapLogger) Debug(v ...any) { l.sugar.Debug(v...) }
func (l *zapLogger) Info(v ...any)  { l.sugar.Info(v...) }
func (l *zapLogger) Warn(v ...any)  { l.sugar.Warn(v...) }
func (l *zapLogger) Error(v ...any) { l.sugar.Error(v...) }
func (l *zapLogger) Fatal(v ...any) { l.sugar.Fatal(v...) }

func (l *zapLogger) With(kv ...any) Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	// Child loggers are called directly, not through the package helpers.
	child := &zapLogger{level: l.level, skip: 1, fields: fields}
	child.build(l.out)
	return child
}

func (l *zapLogger) SetLevel(lv Level) {
	l.level.SetLevel(lv.toZapLevel())
}

// SetOutput redirects the logger. It is not safe to call concurrently with
// logging.
func (l *zapLogger) SetOutput(w io.Writer) {
	l.build(w)
}

// DefaultLogger returns the process-wide logger.
func DefaultLogger() Logger {
	return logger
}

// SetLogger replaces the default logger. Not concurrent-safe; call it
// before any goroutine starts logging.
func SetLogger(v Logger) {
	logger = v
}

// SetOutput sets the output of the default logger. By default, it is stderr.
func SetOutput(w io.Writer) { logger.SetOutput(w) }

// SetLevel sets the level below which logs are dropped.
func SetLevel(lv Level) { logger.SetLevel(lv) }

// With returns a child of the default logger carrying kv on every entry.
func With(kv ...any) Logger { return logger.With(kv...) }

func Debugf(format string, v ...any) { logger.Debugf(format, v...) }
func Infof(format string, v ...any)  { logger.Infof(format, v...) }
func Warnf(format string, v ...any)  { logger.Warnf(format, v...) }
func Errorf(format string, v ...any) { logger.Errorf(format, v...) }

// Fatalf logs and then calls os.Exit(1).
func Fatalf(format string, v ...any) { logger.Fatalf(format, v...) }

func Debug(v ...any) { logger.Debug(v...) }
func Info(v ...any)  { logger.Info(v...) }
func Warn(v ...any)  { logger.Warn(v...) }
func Error(v ...any) { logger.Error(v...) }

// Fatal logs and then calls os.Exit(1).
func Fatal(v ...any) { logger.Fatal(v...) }
