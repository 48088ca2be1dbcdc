// Package logging builds the bracket-prefixed loggers used by the officedesk
// binaries, optionally teeing output into a size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// Sink is the destination shared by every logger of one process.
type Sink struct {
	w    io.Writer
	file *lumberjack.Logger
}

// NewSink writes to stderr, and also to a rotating file at path when path is
// non-empty.
func NewSink(path string) *Sink {
	return newSink(os.Stderr, path)
}

// NewSinkTo writes to w only. Tests use it with io.Discard.
func NewSinkTo(w io.Writer) *Sink {
	return &Sink{w: w}
}

func newSink(console io.Writer, path string) *Sink {
	if path == "" {
		return &Sink{w: console}
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &Sink{w: io.MultiWriter(console, file), file: file}
}

// Logger returns a logger that prefixes each line with "[name] ".
func (s *Sink) Logger(name string) *log.Logger {
	return log.New(s.w, "["+name+"] ", log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
