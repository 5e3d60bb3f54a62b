// Package logger provides structured slog loggers for the dev server. File
// logs are JSON and rotated by lumberjack.
//
// Log files are organized as:
//
//	<logDir>/devproxy.log   application and proxy events
//	<logDir>/access.log     one line per HTTP request
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	systemLogFile = "devproxy.log"
	accessLogFile = "access.log"

	maxSizeMB  = 20
	maxBackups = 5
	maxAgeDays = 14
)

// NewSystemLogger creates a JSON slog.Logger that writes to
// <logDir>/devproxy.log. Records are also fanned out to every handler in
// extra; nil entries are skipped. The directory is created if it
// does not exist.
func NewSystemLogger(logDir string, level slog.Level, extra ...slog.Handler) (*slog.Logger, error) {
	w, err := rotatingWriter(logDir, systemLogFile)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})}
	for _, h := range extra {
		if h != nil {
			handlers = append(handlers, h)
		}
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// NewAccessLogger creates a JSON slog.Logger that writes to
// <logDir>/access.log.
func NewAccessLogger(logDir string, level slog.Level) (*slog.Logger, error) {
	w, err := rotatingWriter(logDir, accessLogFile)
	if err != nil {
		return nil, err
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("log", "access"), nil
}

// NewConsoleHandler returns a text handler for interactive output.
func NewConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func rotatingWriter(logDir, name string) (io.Writer, error) {
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return nil, fmt.Errorf("creating log directory %q: %w", logDir, err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}, nil
}
