// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package logging provides structured logging for the hyperprov CLI.

Logger wraps log/slog with two sinks: human-readable text on stderr
(always) and an optional JSON log file per run in the configured log
directory. The file sink exists so a provisioning run leaves an audit
trail on the host it just mutated.

# Basic Usage

	logger := logging.Default()
	logger.Info("stage applied", "stage", "datastore", "duration_ms", 412)

# File Logging

	logger := logging.New(logging.Config{
	    Level:   logging.LevelInfo,
	    LogDir:  "/var/log/backend-super",
	    Service: "hyperprov",
	})
	defer logger.Close()

This creates `{service}_{date}.log` in JSON format alongside the
application logs the supervisor writes.

# Thread Safety

Logger is safe for concurrent use; the underlying slog handlers are
thread-safe and file state is mutex-protected.
*/
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level mirrors slog's four levels with stable names for config files.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a config string onto a Level. Unknown strings are info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted on both sinks.
	Level Level

	// LogDir enables JSON file logging when non-empty. The directory is
	// created if missing; creation failure degrades to stderr-only.
	LogDir string

	// Service names the log file: {service}_{date}.log. Default "hyperprov".
	Service string

	// Stderr overrides the text sink. Defaults to os.Stderr. Used in tests.
	Stderr io.Writer
}

// Logger is the structured logger used across the CLI.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
	mu      sync.Mutex
}

// New creates a Logger from the given configuration.
//
// File-sink setup failures are not fatal: the logger reports the problem
// on stderr and continues with the terminal sink only, because refusing
// to provision over a logging problem would be backwards.
func New(config Config) *Logger {
	if config.Service == "" {
		config.Service = "hyperprov"
	}
	stderr := config.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	handlers := []slog.Handler{slog.NewTextHandler(stderr, opts)}

	var file *os.File
	if config.LogDir != "" {
		f, err := openLogFile(config.LogDir, config.Service)
		if err != nil {
			fmt.Fprintf(stderr, "logging: file sink disabled: %v\n", err)
		} else {
			file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	return &Logger{
		slogger: slog.New(&multiHandler{handlers: handlers}),
		file:    file,
	}
}

// Default returns a stderr-only logger at info level.
func Default() *Logger {
	return New(Config{Level: LevelInfo})
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.slogger.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slogger.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// With returns a Logger with additional persistent attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), file: nil}
}

// Slog exposes the underlying slog.Logger for libraries that want one.
func (l *Logger) Slog() *slog.Logger { return l.slogger }

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// multiHandler fans one record out to every configured handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
