package log

import (
	"io"
	"log"
	"os"
	"strings"
)

// Output is a destination for formatted entries.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

// ConsoleOutput writes to stderr so command output on stdout stays clean.
type ConsoleOutput struct {
	w io.Writer
}

// NewConsoleOutput creates a ConsoleOutput backed by stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{w: os.Stderr}
}

// NewWriterOutput creates an Output backed by an arbitrary writer.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{w: w}
}

// Write implements Output.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	_, err := o.w.Write(formatted)
	return err
}

// Close implements Output.
func (o *ConsoleOutput) Close() error { return nil }

// RedirectStdLog routes the standard library's global logger (used by
// Pebble internals) through the provided Logger at InfoLevel.
func RedirectStdLog(logger Logger) {
	log.SetFlags(0)
	log.SetOutput(stdLogWriter{logger: logger})
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg, F("source", "stdlog"))
	}
	return len(p), nil
}
