// Package safeio provides a log writer that tolerates the host tearing down
// our stdio pipes. Once the device-control host closes the transport it may
// also close the pipe our logs are written to; writes after that point raise
// broken-pipe errors, which must never crash the process.
package safeio

import (
	"errors"
	"io"
	"sync/atomic"
	"syscall"
)

// Writer wraps an io.Writer and swallows write failures. After a broken-pipe
// style error, or an explicit Shutdown, all further writes are dropped.
type Writer struct {
	out  io.Writer
	down atomic.Bool
}

// NewWriter wraps out in a broken-pipe tolerant writer.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Write forwards to the underlying writer. It never returns an error: the
// bytes either make it out or are silently discarded.
func (w *Writer) Write(p []byte) (int, error) {
	if w.down.Load() {
		return len(p), nil
	}
	if _, err := w.out.Write(p); err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
			w.down.Store(true)
		}
	}
	return len(p), nil
}

// Shutdown latches the writer closed. Used when the transport terminates and
// the host's log pipe can no longer be trusted.
func (w *Writer) Shutdown() {
	w.down.Store(true)
}
