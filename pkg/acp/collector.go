package acp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ToolCallRecord is one observed tool_call update.
type ToolCallRecord struct {
	ID       string
	Title    string
	Kind     string
	RawInput json.RawMessage
}

// ToolUpdateRecord is one observed tool_call_update.
type ToolUpdateRecord struct {
	ID     string
	Status string
}

// OtherUpdate preserves an update of a kind the harness does not
// classify. Unknown kinds are recorded, never dropped.
type OtherUpdate struct {
	Kind string
	Raw  json.RawMessage
}

// TurnOutcome is the terminal state of one prompt turn: everything that
// streamed in before the response, in arrival order, plus the stop
// reason from the response itself.
type TurnOutcome struct {
	Chunks      []string
	Thoughts    []string
	ToolCalls   []ToolCallRecord
	ToolUpdates []ToolUpdateRecord
	Plans       [][]PlanEntry
	Other       []OtherUpdate

	StopReason    StopReason
	RawStopReason string
}

// Text concatenates the streamed message chunks in arrival order.
func (o *TurnOutcome) Text() string {
	return strings.Join(o.Chunks, "")
}

// TurnCollector accumulates session/update notifications for the turn
// in flight. One collector serves one turn at a time; Finalize resets
// it so no text leaks into the next turn.
type TurnCollector struct {
	outcome TurnOutcome
	logger  *slog.Logger
}

// NewTurnCollector returns an empty collector.
func NewTurnCollector() *TurnCollector {
	return &TurnCollector{logger: slog.Default()}
}

// SetLogger installs a logger for per-update diagnostics.
func (c *TurnCollector) SetLogger(l *slog.Logger) { c.logger = l }

// Observe classifies one notification. Notifications for methods other
// than session/update are logged and ignored; update kinds the
// collector does not know go to the other bucket with their raw label.
func (c *TurnCollector) Observe(method string, params json.RawMessage) error {
	if method != MethodSessionUpdate {
		c.logger.Debug("ignoring notification", "method", method)
		return nil
	}

	var note SessionNotification
	if err := json.Unmarshal(params, &note); err != nil {
		return fmt.Errorf("malformed session/update params: %w", err)
	}
	u := note.Update

	switch u.SessionUpdate {
	case UpdateAgentMessageChunk:
		text := ""
		if u.Content != nil {
			text = u.Content.Text
		}
		c.outcome.Chunks = append(c.outcome.Chunks, text)
		c.logger.Debug("text chunk", "text", text)
	case UpdateAgentThoughtChunk:
		text := ""
		if u.Content != nil {
			text = u.Content.Text
		}
		c.outcome.Thoughts = append(c.outcome.Thoughts, text)
		c.logger.Debug("thought chunk")
	case UpdateToolCall:
		c.outcome.ToolCalls = append(c.outcome.ToolCalls, ToolCallRecord{
			ID:       u.ToolCallID,
			Title:    u.Title,
			Kind:     u.Kind,
			RawInput: u.RawInput,
		})
		c.logger.Info("tool call", "title", u.Title, "kind", u.Kind)
	case UpdateToolCallUpdate:
		c.outcome.ToolUpdates = append(c.outcome.ToolUpdates, ToolUpdateRecord{
			ID:     u.ToolCallID,
			Status: u.Status,
		})
		c.logger.Info("tool update", "id", u.ToolCallID, "status", u.Status)
	case UpdatePlan:
		entries := append([]PlanEntry(nil), u.Entries...)
		c.outcome.Plans = append(c.outcome.Plans, entries)
		c.logger.Info("plan update", "entries", len(entries))
	default:
		raw := append(json.RawMessage(nil), params...)
		c.outcome.Other = append(c.outcome.Other, OtherUpdate{
			Kind: u.SessionUpdate,
			Raw:  raw,
		})
		c.logger.Info("unclassified update", "kind", u.SessionUpdate)
	}
	return nil
}

// Finalize attaches the terminal response's stop reason to the
// accumulated outcome, returns it, and resets the collector for the
// next turn.
func (c *TurnCollector) Finalize(result json.RawMessage) (*TurnOutcome, error) {
	var pr PromptResult
	if len(result) > 0 {
		if err := json.Unmarshal(result, &pr); err != nil {
			return nil, fmt.Errorf("malformed prompt result: %w", err)
		}
	}

	outcome := c.outcome
	outcome.RawStopReason = pr.StopReason
	outcome.StopReason = ParseStopReason(pr.StopReason)

	c.outcome = TurnOutcome{}
	return &outcome, nil
}

// Reset discards anything accumulated for the current turn.
func (c *TurnCollector) Reset() {
	c.outcome = TurnOutcome{}
}
