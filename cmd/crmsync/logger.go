package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"
)

const levelTrace = slog.Level(-8)

// slogProvider hands out glog loggers backed by a single slog handler, each
// tagged with its component name.
type slogProvider struct {
	handler slog.Handler
}

func newLoggerProvider(w io.Writer, debug bool) *slogProvider {
	level := slog.LevelInfo
	if debug {
		level = levelTrace
	}
	return &slogProvider{handler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})}
}

func (p *slogProvider) GetLogger(name string) glog.Logger {
	return &slogLogger{inner: slog.New(p.handler).With("logger", name)}
}

type slogLogger struct {
	inner *slog.Logger
	ctx   context.Context
}

func (l *slogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.inner.Log(ctx, level, msg, args...)
}

func (l *slogLogger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	return &slogLogger{inner: l.inner, ctx: ctx}
}

func (l *slogLogger) WithFields(fields map[string]any) glog.Logger {
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return &slogLogger{inner: l.inner.With(args...), ctx: l.ctx}
}
