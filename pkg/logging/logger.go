// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the slog loggers used by the tabaudit binaries.
//
// Output always goes to one stream (stderr for the CLI, stdout for the
// server). When LogDir is set, a JSON copy of every record is appended to
// {LogDir}/{service}_{date}.log so audits run from cron or CI leave a trail.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "auditserver"})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	// LevelDebug includes per-probe and per-fallback detail.
	LevelDebug Level = iota

	// LevelInfo is the server default.
	LevelInfo

	// LevelWarn is the CLI default: failed probes and degraded stores only.
	LevelWarn

	// LevelError is for operations that failed outright.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) slogLevel() slog.Level {
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

// ParseLevel maps "debug", "info", "warn" or "error" (any case) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Config controls where and how a Logger writes.
type Config struct {
	// Level is the minimum level emitted.
	Level Level

	// Service is attached to every record as "service".
	Service string

	// JSON selects the JSON handler for Output. File logs are always JSON.
	JSON bool

	// Output receives the primary stream. Defaults to os.Stderr.
	Output io.Writer

	// LogDir enables the file copy. "~" is expanded.
	LogDir string

	// Now is used for the log file date. Defaults to time.Now.
	Now func() time.Time
}

// Logger owns a slog.Logger and the log file behind it, if any.
//
// # Thread Safety
//
// Safe for concurrent use. Close must be called once, after logging stops.
type Logger struct {
	slog *slog.Logger
	file *os.File
	mu   sync.Mutex
}

// New builds a Logger. A LogDir that cannot be created or opened is
// reported on the primary stream and file logging is skipped.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}

	var primary slog.Handler
	if cfg.JSON {
		primary = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		primary = slog.NewTextHandler(cfg.Output, opts)
	}

	l := &Logger{}
	handler := primary
	var fileErr error
	if cfg.LogDir != "" {
		l.file, fileErr = openLogFile(cfg)
		if fileErr == nil {
			handler = &multiHandler{handlers: []slog.Handler{primary, slog.NewJSONHandler(l.file, opts)}}
		}
	}

	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	l.slog = slog.New(handler)

	if fileErr != nil {
		l.slog.Warn("File logging disabled", "log_dir", cfg.LogDir, "error", fileErr)
	}
	return l
}

// Slog returns the underlying *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// FilePath returns the log file path, or "" without file logging.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close flushes and closes the log file. Safe to call more than once.
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

func openLogFile(cfg Config) (*os.File, error) {
	dir := expandPath(cfg.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	service := cfg.Service
	if service == "" {
		service = "tabaudit"
	}
	name := fmt.Sprintf("%s_%s.log", service, cfg.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// multiHandler fans a record out to every handler that accepts its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			errs = append(errs, hh.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
