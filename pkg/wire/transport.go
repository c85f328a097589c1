package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by Receive once the peer's output stream has
// ended and every buffered line has been consumed.
var ErrClosed = errors.New("transport closed")

const (
	initialBufSize = 1024 * 1024
	maxBufSize     = 10 * 1024 * 1024

	// lineBacklog bounds how many complete lines sit parsed-but-unread.
	// The reader goroutine blocks once the backlog is full, which
	// backpressures the peer through the pipe instead of dropping
	// messages.
	lineBacklog = 256
)

// Transport reads and writes newline-delimited JSON-RPC messages over a
// byte stream pair, typically a subprocess's stdin and stdout pipes.
// It owns framing only: it never interprets method names or ids.
//
// A background goroutine splits the read side into lines so that
// Receive can apply a deadline without losing partial input.
type Transport struct {
	w  io.Writer
	mu sync.Mutex // serializes writes; one line per Send

	lines chan []byte
	errMu sync.Mutex
	rdErr error // sticky; set when the reader goroutine exits

	tracer *Tracer
}

// NewTransport wraps the peer's input (w) and output (r) streams and
// starts the background line reader.
func NewTransport(w io.Writer, r io.Reader) *Transport {
	t := &Transport{
		w:     w,
		lines: make(chan []byte, lineBacklog),
	}
	go t.readLines(r)
	return t
}

// SetTracer installs a wire tracer. Every line sent or received is
// appended to the trace. Must be set before traffic starts.
func (t *Transport) SetTracer(tr *Tracer) { t.tracer = tr }

func (t *Transport) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, initialBufSize)
	scanner.Buffer(buf, maxBufSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		// scanner reuses its buffer; copy before handing off
		t.lines <- append([]byte(nil), line...)
	}

	t.errMu.Lock()
	if err := scanner.Err(); err != nil {
		t.rdErr = fmt.Errorf("%w: %v", ErrClosed, err)
	} else {
		t.rdErr = ErrClosed
	}
	t.errMu.Unlock()
	close(t.lines)
}

func (t *Transport) readErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.rdErr
}

// Send serializes msg to a single line terminated by a newline and
// writes it, flushing immediately.
func (t *Transport) Send(msg *Message) error {
	msg.JSONRPC = "2.0"
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	t.tracer.Sent(b)
	b = append(b, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(b); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush message: %w", err)
		}
	}
	return nil
}

// Receive blocks until one full line is available or the deadline
// elapses. An elapsed deadline returns (nil, nil): absence of traffic
// within a window is expected, not a failure. A malformed line is an
// error for this call only. Once the stream ends, Receive returns
// ErrClosed.
func (t *Transport) Receive(deadline time.Duration) (*Message, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case line, ok := <-t.lines:
		if !ok {
			return nil, t.readErr()
		}
		t.tracer.Received(line)
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("malformed message %q: %w", line, err)
		}
		return &msg, nil
	case <-timer.C:
		return nil, nil
	}
}
