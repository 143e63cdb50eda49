// Package logging builds the prefixed loggers used across the engine.
// Daemon mode can route everything through a size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes.
type Options struct {
	// FilePath, when set, writes logs to a rotating file as well as
	// stderr.
	FilePath string

	// MaxSizeMB is the rotation size threshold (default: 10).
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep (default: 3).
	MaxBackups int
}

// Sink builds the shared log writer for the given options.
func Sink(opts Options) io.Writer {
	if opts.FilePath == "" {
		return os.Stderr
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}

	rotated := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	return io.MultiWriter(os.Stderr, rotated)
}

// New creates a prefixed logger writing to w. A nil writer defaults to
// stderr, matching the component-local defaults across the engine.
func New(w io.Writer, prefix string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}
