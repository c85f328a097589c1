// Package acp holds the Agent Client Protocol surface the harness
// exercises: the request/response payloads for initialize, session/new,
// session/prompt and session/cancel, the session/update notification
// variants, and the per-turn aggregation of streamed updates.
package acp

import "encoding/json"

// Method names spoken by the harness as client.
const (
	MethodInitialize    = "initialize"
	MethodSessionNew    = "session/new"
	MethodSessionPrompt = "session/prompt"
	MethodSessionCancel = "session/cancel"
	MethodSessionUpdate = "session/update"
)

// ProtocolVersion is the version the harness advertises in initialize.
const ProtocolVersion = "0.1"

// InitializeParams are the params of the initialize request.
type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// AgentInfo identifies the agent under test.
type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	AgentInfo       AgentInfo       `json:"agentInfo"`
	Capabilities    json.RawMessage `json:"agentCapabilities,omitempty"`
}

// NewSessionParams are the params of session/new.
type NewSessionParams struct {
	Cwd        string `json:"cwd"`
	McpServers []any  `json:"mcpServers"`
}

// NewSessionResult is the result of session/new.
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
}

// ContentBlock is one element of a prompt's ordered content list. Only
// text blocks are sent by the harness.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// PromptParams are the params of session/prompt.
type PromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// PromptResult is the terminal result of a prompt turn.
type PromptResult struct {
	StopReason string `json:"stopReason"`
}

// CancelParams are the params of the session/cancel notification.
type CancelParams struct {
	SessionID string `json:"sessionId"`
}

// Session update kinds carried in the sessionUpdate discriminator. The
// set is open; anything else is kept under UpdateOther.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
)

// PlanEntry is one step of an agent-reported plan.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// SessionUpdate is the tagged payload of a session/update notification.
// Only the fields matching the discriminator are populated; the rest
// stay zero.
type SessionUpdate struct {
	SessionUpdate string `json:"sessionUpdate"`

	// agent_message_chunk, agent_thought_chunk
	Content *ContentBlock `json:"content,omitempty"`

	// tool_call, tool_call_update
	ToolCallID string          `json:"toolCallId,omitempty"`
	Title      string          `json:"title,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	RawInput   json.RawMessage `json:"rawInput,omitempty"`
	Status     string          `json:"status,omitempty"`

	// plan
	Entries []PlanEntry `json:"entries,omitempty"`
}

// SessionNotification is the params object of session/update.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// StopReason classifies how a turn ended. The protocol may grow values
// the harness does not know; those normalize to StopUnknown while the
// raw string is preserved alongside.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopCancelled StopReason = "cancelled"
	StopMaxTokens StopReason = "max_tokens"
	StopRefusal   StopReason = "refusal"
	StopError     StopReason = "error"
	StopUnknown   StopReason = "unknown"
)

// ParseStopReason maps a wire value onto the known set.
func ParseStopReason(raw string) StopReason {
	switch StopReason(raw) {
	case StopEndTurn, StopCancelled, StopMaxTokens, StopRefusal, StopError:
		return StopReason(raw)
	default:
		return StopUnknown
	}
}
