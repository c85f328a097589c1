// Package rpc implements the client half of a JSON-RPC 2.0 connection
// over line-delimited streams: issuing requests with strictly-increasing
// ids, and draining a single inbound stream where responses and
// notifications arrive interleaved in arbitrary order relative to ids.
package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tiancaiamao/acpcheck/pkg/wire"
)

// NotificationHandler receives every inbound notification in arrival
// order. A non-nil error aborts the drain in progress.
type NotificationHandler func(method string, params json.RawMessage) error

// DefaultReceiveDeadline bounds a single Receive iteration inside
// Drain. It must stay shorter than typical drain timeouts so that the
// cumulative timeout is checked between reads.
const DefaultReceiveDeadline = 2 * time.Second

type pendingCall struct {
	id     int64
	method string
	sentAt time.Time
}

// Client correlates outbound requests with inbound responses. One
// Client owns one peer connection for the peer's whole lifetime; ids
// are never reused while pending.
type Client struct {
	transport *wire.Transport

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pendingCall

	onNotification  NotificationHandler
	receiveDeadline time.Duration

	logger *slog.Logger
}

// NewClient wraps an established transport.
func NewClient(transport *wire.Transport) *Client {
	return &Client{
		transport:       transport,
		pending:         make(map[int64]*pendingCall),
		receiveDeadline: DefaultReceiveDeadline,
		logger:          slog.Default(),
	}
}

// SetLogger installs a logger for connection diagnostics.
func (c *Client) SetLogger(l *slog.Logger) { c.logger = l }

// SetReceiveDeadline overrides the per-iteration read deadline used by
// Drain.
func (c *Client) SetReceiveDeadline(d time.Duration) { c.receiveDeadline = d }

// OnNotification registers the handler that inbound notifications are
// forwarded to while draining.
func (c *Client) OnNotification(h NotificationHandler) { c.onNotification = h }

// Call allocates a fresh id, registers the pending request and sends
// it. It returns immediately; the response is retrieved via Drain.
func (c *Client) Call(method string, params any) (int64, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = &pendingCall{id: id, method: method, sentAt: time.Now()}
	c.mu.Unlock()

	msg, err := wire.NewRequest(id, method, params)
	if err != nil {
		c.removePending(id)
		return 0, err
	}
	if err := c.transport.Send(msg); err != nil {
		c.removePending(id)
		return 0, err
	}
	c.logger.Debug("sent request", "id", id, "method", method)
	return id, nil
}

// Notify sends a notification. No pending call is created because no
// response will ever arrive.
func (c *Client) Notify(method string, params any) error {
	msg, err := wire.NewNotification(method, params)
	if err != nil {
		return err
	}
	if err := c.transport.Send(msg); err != nil {
		return err
	}
	c.logger.Debug("sent notification", "method", method)
	return nil
}

// Drain reads the inbound stream until the response for id arrives or
// timeout elapses cumulatively. Notifications encountered along the way
// are dispatched to the registered handler, in arrival order, before
// the wait resumes; they are never discarded. A response for a
// different still-pending id resolves that call and the loop continues.
// A response with an unknown id is a protocol violation.
func (c *Client) Drain(id int64, timeout time.Duration) (*wire.Message, error) {
	c.mu.Lock()
	call := c.pending[id]
	c.mu.Unlock()
	if call == nil {
		return nil, fmt.Errorf("no pending call with id %d", id)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{ID: id, Method: call.method, Timeout: timeout}
		}
		step := c.receiveDeadline
		if step > remaining {
			step = remaining
		}

		msg, err := c.transport.Receive(step)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue // quiet window; re-check the cumulative deadline
		}

		switch msg.Kind() {
		case wire.KindResponse:
			done, err := c.handleResponse(msg, id)
			if err != nil {
				return nil, err
			}
			if done {
				return msg, nil
			}
		case wire.KindNotification:
			if c.onNotification == nil {
				c.logger.Debug("dropping notification, no handler", "method", msg.Method)
				continue
			}
			if err := c.onNotification(msg.Method, msg.Params); err != nil {
				return nil, fmt.Errorf("notification handler failed for %s: %w", msg.Method, err)
			}
		case wire.KindRequest:
			// The agent never initiates requests in this protocol subset.
			return nil, &ProtocolError{
				Reason:  fmt.Sprintf("unexpected inbound request %q", msg.Method),
				Payload: rawMessage(msg),
			}
		default:
			return nil, &ProtocolError{
				Reason:  "message with neither id nor method",
				Payload: rawMessage(msg),
			}
		}
	}
}

// handleResponse resolves the pending call the response belongs to.
// done reports whether it was the awaited one.
func (c *Client) handleResponse(msg *wire.Message, awaited int64) (done bool, err error) {
	respID, idErr := msg.IDInt64()
	if idErr != nil {
		return false, &ProtocolError{Reason: idErr.Error(), Payload: rawMessage(msg)}
	}

	c.mu.Lock()
	call := c.pending[respID]
	if call != nil {
		delete(c.pending, respID)
	}
	c.mu.Unlock()

	if call == nil {
		return false, &ProtocolError{
			Reason:  fmt.Sprintf("response id %d matches no pending request", respID),
			Payload: rawMessage(msg),
		}
	}
	if respID != awaited {
		c.logger.Warn("resolved out-of-band response while draining",
			"id", respID, "method", call.method, "awaited", awaited)
		return false, nil
	}
	c.logger.Debug("received response", "id", respID, "method", call.method,
		"elapsed", time.Since(call.sentAt))
	return true, nil
}

// PendingCount reports how many calls are still awaiting a response.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func rawMessage(msg *wire.Message) json.RawMessage {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}
