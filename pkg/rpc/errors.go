package rpc

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeoutError reports that no matching response arrived within the
// cumulative drain timeout. A slow-but-alive peer is a different
// condition from a dead one, so this is distinct from transport errors.
type TimeoutError struct {
	ID      int64
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response for %s (id %d) within %s", e.Method, e.ID, e.Timeout)
}

// ProtocolError reports a peer message that violates the JSON-RPC
// contract, such as a response whose id matches no pending request. The
// offending payload is kept for diagnosis.
type ProtocolError struct {
	Reason  string
	Payload json.RawMessage
}

func (e *ProtocolError) Error() string {
	if len(e.Payload) == 0 {
		return fmt.Sprintf("protocol violation: %s", e.Reason)
	}
	return fmt.Sprintf("protocol violation: %s (payload: %s)", e.Reason, e.Payload)
}
