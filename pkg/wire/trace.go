package wire

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Tracer appends every wire line to a log with a timestamp and
// direction marker. Useful when a conformance failure needs the raw
// traffic for diagnosis. A nil Tracer is a no-op.
type Tracer struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewTracer writes trace lines to w.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w}
}

// OpenTracer opens (or creates) a trace file in append mode.
func OpenTracer(path string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &Tracer{w: f, c: f}, nil
}

// Sent records an outgoing line.
func (t *Tracer) Sent(line []byte) { t.record("->", line) }

// Received records an incoming line.
func (t *Tracer) Received(line []byte) { t.record("<-", line) }

func (t *Tracer) record(dir string, line []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "[%s] %s %s\n", time.Now().Format("15:04:05.000"), dir, line)
}

// Close closes the underlying file, if any.
func (t *Tracer) Close() error {
	if t == nil || t.c == nil {
		return nil
	}
	return t.c.Close()
}
