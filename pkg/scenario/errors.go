package scenario

import "fmt"

// AssertionError is a scenario expectation that was not met: wrong stop
// reason, missing substring, no streamed chunks. Distinct from
// transport and protocol errors, which mean the conversation itself
// broke down.
type AssertionError struct {
	Reason string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s", e.Reason)
}

func failf(format string, args ...any) *AssertionError {
	return &AssertionError{Reason: fmt.Sprintf(format, args...)}
}

// StateError reports a protocol step attempted in the wrong state, such
// as prompting before a session exists.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}
