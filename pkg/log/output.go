package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to stdout, routing warnings and
// errors to stderr.
type ConsoleOutput struct {
	mu sync.Mutex
	// Stdout and Stderr default to os.Stdout and os.Stderr when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// NewConsoleOutput creates a console output with the default streams.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Write implements the Output interface.
func (o *ConsoleOutput) Write(entry *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	w := o.Stdout
	if entry.Level >= WarnLevel {
		w = o.Stderr
	}
	if w == nil {
		if entry.Level >= WarnLevel {
			w = os.Stderr
		} else {
			w = os.Stdout
		}
	}
	_, err := w.Write(formattedEntry)
	return err
}

// Close implements the Output interface. Console streams are not closed.
func (o *ConsoleOutput) Close() error { return nil }

// WriterOutput writes formatted entries to an arbitrary io.Writer.
type WriterOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutput creates an output backed by w.
func NewWriterOutput(w io.Writer) *WriterOutput {
	return &WriterOutput{w: w}
}

// Write implements the Output interface.
func (o *WriterOutput) Write(_ *Entry, formattedEntry []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formattedEntry)
	return err
}

// Close implements the Output interface.
func (o *WriterOutput) Close() error {
	if c, ok := o.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
