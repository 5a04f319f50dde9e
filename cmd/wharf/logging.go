package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logFileName is the rotating operational log, kept next to the ledger
// in the database directory.
const logFileName = "wharf.log"

// stderrLevel picks the console level from the verbosity flags.
func stderrLevel() slog.Level {
	switch {
	case verboseFlag:
		return slog.LevelDebug
	case quietFlag:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// consoleLogger logs to stderr only. Used by commands that do not run
// the pipeline.
func consoleLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel()}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// serviceLogger writes the full stream as JSON to a rotating file under
// the database directory and mirrors warnings (everything with
// --verbose) to stderr. Close the returned closer on shutdown.
func serviceLogger() (*slog.Logger, io.Closer) {
	if cfg.Directories.Database == "" {
		return consoleLogger(), nopCloser{}
	}
	if err := os.MkdirAll(cfg.Directories.Database, 0o755); err != nil {
		WarnError("cannot create log directory, logging to stderr only: %v", err)
		return consoleLogger(), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directories.Database, logFileName),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     60, // days
		Compress:   true,
	}
	fileLevel := slog.LevelInfo
	if verboseFlag {
		fileLevel = slog.LevelDebug
	}
	h := teeHandler{
		file:    slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: fileLevel}),
		console: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel()}),
	}
	return slog.New(h), rotator
}

// teeHandler forwards each record to both handlers; each applies its
// own level filter. slog has no built-in fan-out.
type teeHandler struct {
	file    slog.Handler
	console slog.Handler
}

func (h teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.file.Enabled(ctx, level) || h.console.Enabled(ctx, level)
}

func (h teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.file.Enabled(ctx, r.Level) {
		err = h.file.Handle(ctx, r.Clone())
	}
	if h.console.Enabled(ctx, r.Level) {
		if cerr := h.console.Handle(ctx, r.Clone()); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (h teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{file: h.file.WithAttrs(attrs), console: h.console.WithAttrs(attrs)}
}

func (h teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{file: h.file.WithGroup(name), console: h.console.WithGroup(name)}
}
