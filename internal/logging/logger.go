package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the diagnostic log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// Options configures New.
type Options struct {
	// File, if set, receives a copy of every record with size-based rotation.
	File    string
	Verbose bool
	Stderr  io.Writer
}

// New builds the process logger. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer) {
	var w io.Writer = opts.Stderr
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		fileLog := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		w = io.MultiWriter(w, fileLog)
		closer = fileLog
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
