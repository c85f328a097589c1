package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind classifies a JSON-RPC message by its shape.
type Kind int

const (
	// KindInvalid is a message with neither id nor method.
	KindInvalid Kind = iota
	// KindRequest has both an id and a method.
	KindRequest
	// KindResponse has an id but no method.
	KindResponse
	// KindNotification has a method but no id.
	KindNotification
)

// String returns the string representation of the message kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Message is a single JSON-RPC 2.0 message. Exactly one wire line holds
// one message. The same struct covers requests, responses and
// notifications; Kind tells them apart.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

// ResponseError is the error member of a JSON-RPC response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Kind classifies the message.
func (m *Message) Kind() Kind {
	switch {
	case m.ID != nil && m.Method != "":
		return KindRequest
	case m.ID != nil:
		return KindResponse
	case m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// IDInt64 parses the message id as an integer. The harness only ever
// allocates integer ids, so an id in any other form is unexpected.
func (m *Message) IDInt64() (int64, error) {
	if m.ID == nil {
		return 0, fmt.Errorf("message has no id")
	}
	raw := bytes.TrimSpace(*m.ID)
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-integer message id %s", raw)
	}
	return id, nil
}

// NewRequest builds a request message with the given id, marshalling
// params to raw JSON.
func NewRequest(id int64, method string, params any) (*Message, error) {
	idRaw := json.RawMessage(strconv.FormatInt(id, 10))
	msg := &Message{
		JSONRPC: "2.0",
		ID:      &idRaw,
		Method:  method,
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, err)
		}
		msg.Params = b
	}
	return msg, nil
}

// NewNotification builds a notification message. Notifications carry no
// id and never receive a response.
func NewNotification(method string, params any) (*Message, error) {
	msg := &Message{
		JSONRPC: "2.0",
		Method:  method,
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, err)
		}
		msg.Params = b
	}
	return msg, nil
}
