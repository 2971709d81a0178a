// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for the diplomacy runner.
//
// # Description
//
// Logger wraps log/slog with two destinations:
//
//   - stderr (default): text on a terminal, JSON otherwise
//   - file (optional): always JSON, named "{service}_{date}.log"
//
// The verbosity switches for model traffic (full prompts, full responses)
// live on Config and are handed to the model gateway by the caller. Nothing
// in this package is global.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   "info",
//	    LogDir:  "~/.aleutian/diplomacy/logs",
//	    Service: "diplomacy",
//	})
//	defer logger.Close()
//	logger.Info("phase started", "phase", "S1901M")
//
// # Thread Safety
//
// Logger is safe for concurrent use.
//
// # Security Considerations
//
// Full prompt and response logging writes model traffic verbatim. API keys
// are never logged by this module, but prompts may contain game state the
// operator considers private.
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

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Configuration
// =============================================================================

// Output formats for Config.Format.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultPreviewChars is the truncation length for prompt and response
// previews when full logging is off.
const DefaultPreviewChars = 200

// Config configures the Logger.
//
// A zero-value Config writes Info+ to stderr, text on a terminal and JSON
// elsewhere.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`

	// LogDir enables JSON file logging. Supports ~ expansion.
	// Default: "" (disabled)
	LogDir string `yaml:"log_dir,omitempty" json:"log_dir,omitempty"`

	// Service is attached to every record as the "service" attribute and
	// names the log file.
	Service string `yaml:"service,omitempty" json:"service,omitempty"`

	// Format selects the stderr format: "auto", "text" or "json".
	// Default: "auto"
	Format string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=auto text json"`

	// Quiet disables stderr output.
	Quiet bool `yaml:"quiet,omitempty" json:"quiet,omitempty"`

	// LogFullPrompts logs every prompt sent to a model in full instead of a
	// truncated preview.
	LogFullPrompts bool `yaml:"log_full_prompts" json:"log_full_prompts"`

	// LogFullResponses logs every model reply in full instead of a
	// truncated preview.
	LogFullResponses bool `yaml:"log_full_responses" json:"log_full_responses"`

	// PreviewChars is the preview length when full logging is off.
	// Default: DefaultPreviewChars
	PreviewChars int `yaml:"preview_chars,omitempty" json:"preview_chars,omitempty" validate:"gte=0"`

	// Output replaces stderr. Used by tests.
	Output io.Writer `yaml:"-" json:"-"`
}

// ParseLevel maps a level name to slog.Level. Unknown names are Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Preview returns the configured preview length.
func (c Config) Preview() int {
	if c.PreviewChars > 0 {
		return c.PreviewChars
	}
	return DefaultPreviewChars
}

// =============================================================================
// Logger
// =============================================================================

// Logger provides structured logging with stderr and file output.
//
// Always Close a logger with file logging enabled:
//
//	logger := logging.New(cfg)
//	defer logger.Close()
type Logger struct {
	slog   *slog.Logger
	config Config

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger. A log directory that cannot be created or opened is
// reported on stderr and file logging is skipped.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(config.Level)}
	logger := &Logger{config: config}

	var handlers []slog.Handler
	if !config.Quiet {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if useJSON(config.Format, out) {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	if config.LogDir != "" {
		file, err := openLogFile(config.LogDir, config.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file logging disabled: %v\n", err)
		} else {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level stderr logger for service "diplomacy".
func Default() *Logger {
	return New(Config{Level: "info", Service: "diplomacy"})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child Logger carrying extra attributes. The child shares
// the parent's file; only the parent should be closed.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// Slog returns the underlying slog.Logger for constructors that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Config returns the configuration the logger was built with.
func (l *Logger) Config() Config {
	return l.config
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// Truncate shortens text to max characters, noting the original length.
// max <= 0 returns text unchanged.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return fmt.Sprintf("%s... [truncated, total length: %d chars]", string(runes[:max]), len(runes))
}

func useJSON(format string, out io.Writer) bool {
	switch format {
	case FormatJSON:
		return true
	case FormatText:
		return false
	}
	if f, ok := out.(*os.File); ok {
		fd := f.Fd()
		return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	}
	return true
}

func openLogFile(dir, service string) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "diplomacy"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// multiHandler fans records out to several handlers.
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
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
