// Package scenario drives conformance scenarios against an agent
// process speaking the Agent Client Protocol over stdio. A Runner owns
// one agent subprocess for one scenario run and walks a fixed protocol
// state machine: initialize, create a session, then one or more prompt
// turns whose streamed updates are aggregated into turn outcomes.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tiancaiamao/acpcheck/pkg/acp"
	"github.com/tiancaiamao/acpcheck/pkg/config"
	"github.com/tiancaiamao/acpcheck/pkg/rpc"
	"github.com/tiancaiamao/acpcheck/pkg/wire"
)

// State is the runner's position in the protocol state machine.
type State int

const (
	StateUnstarted State = iota
	StateInitialized
	StateSessionActive
	StateAwaitingTurn
	StateTurnComplete
	StateTerminated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateInitialized:
		return "initialized"
	case StateSessionActive:
		return "session-active"
	case StateAwaitingTurn:
		return "awaiting-turn"
	case StateTurnComplete:
		return "turn-complete"
	case StateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

// Timeouts are the deadlines a runner applies, resolved from config so
// tests can tighten them.
type Timeouts struct {
	Receive      time.Duration
	Call         time.Duration
	Turn         time.Duration
	WorkflowTurn time.Duration
	CancelDelay  time.Duration
}

func timeoutsFromConfig(t config.TimeoutConfig) Timeouts {
	return Timeouts{
		Receive:      t.ReceiveDeadline(),
		Call:         t.CallTimeout(),
		Turn:         t.TurnTimeout(),
		WorkflowTurn: t.WorkflowTurnTimeout(),
		CancelDelay:  t.CancelDelay(),
	}
}

// Runner drives one scenario run against one agent process. It is not
// safe for concurrent use; a run is a single logical thread of control
// and the only blocking point is the bounded receive inside Drain.
type Runner struct {
	Timeouts Timeouts

	proc      *AgentProcess
	tracer    *wire.Tracer
	client    *rpc.Client
	collector *acp.TurnCollector
	logger    *slog.Logger

	state      State
	cancelling bool
	sessionID  string
	agentInfo  acp.AgentInfo
	protocol   string
}

// NewRunner launches the configured agent and wires the transport
// stack on its pipes.
func NewRunner(cfg *config.Config) (*Runner, error) {
	if cfg.Agent.Command == "" {
		return nil, fmt.Errorf("no agent command configured")
	}
	proc, err := StartAgent(cfg.Agent.Command, cfg.Agent.Args, cfg.Agent.Env)
	if err != nil {
		return nil, err
	}

	var tracer *wire.Tracer
	if cfg.TraceFile != "" {
		tracer, err = wire.OpenTracer(cfg.TraceFile)
		if err != nil {
			_ = proc.Terminate()
			return nil, err
		}
	}

	r := newRunner(cfg, proc.Stdin(), proc.Stdout(), tracer)
	r.proc = proc
	return r, nil
}

// NewRunnerIO wires a runner over an arbitrary stream pair instead of
// a subprocess. Used by tests with an in-process agent endpoint.
func NewRunnerIO(cfg *config.Config, agentIn io.Writer, agentOut io.Reader) *Runner {
	return newRunner(cfg, agentIn, agentOut, nil)
}

func newRunner(cfg *config.Config, agentIn io.Writer, agentOut io.Reader, tracer *wire.Tracer) *Runner {
	transport := wire.NewTransport(agentIn, agentOut)
	if tracer != nil {
		transport.SetTracer(tracer)
	}

	r := &Runner{
		Timeouts:  timeoutsFromConfig(cfg.Timeouts),
		tracer:    tracer,
		client:    rpc.NewClient(transport),
		collector: acp.NewTurnCollector(),
		logger:    slog.Default(),
		state:     StateUnstarted,
	}
	r.client.SetReceiveDeadline(r.Timeouts.Receive)
	r.client.OnNotification(r.collector.Observe)
	return r
}

// State reports the runner's current protocol state.
func (r *Runner) State() State { return r.state }

// Cancelling reports whether a cancel notification is in flight for
// the current turn.
func (r *Runner) Cancelling() bool { return r.cancelling }

// SessionID is the session identifier returned by session/new.
func (r *Runner) SessionID() string { return r.sessionID }

// AgentInfo is the identity the agent reported during initialize.
func (r *Runner) AgentInfo() acp.AgentInfo { return r.agentInfo }

// ProtocolVersion is the version the agent reported during initialize.
func (r *Runner) ProtocolVersion() string { return r.protocol }

// Initialize performs the initialize handshake and validates the agent
// identity fields. Missing fields fail the scenario, not the harness.
func (r *Runner) Initialize() error {
	if r.state != StateUnstarted {
		return &StateError{Op: "initialize", State: r.state}
	}

	resp, err := r.roundTrip(acp.MethodInitialize, acp.InitializeParams{
		ProtocolVersion: acp.ProtocolVersion,
	})
	if err != nil {
		return err
	}

	var result acp.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("malformed initialize result: %w", err)
	}
	if result.AgentInfo.Name == "" || result.AgentInfo.Version == "" {
		return failf("initialize response missing agent identity: %+v", result.AgentInfo)
	}
	if result.ProtocolVersion == "" {
		return failf("initialize response missing protocol version")
	}

	r.agentInfo = result.AgentInfo
	r.protocol = result.ProtocolVersion
	r.state = StateInitialized
	r.logger.Info("initialized", "agent", result.AgentInfo.Name,
		"version", result.AgentInfo.Version, "protocol", result.ProtocolVersion)
	return nil
}

// NewSession creates the session all subsequent turns run in.
func (r *Runner) NewSession(cwd string) error {
	if r.state != StateInitialized {
		return &StateError{Op: "create session", State: r.state}
	}

	resp, err := r.roundTrip(acp.MethodSessionNew, acp.NewSessionParams{
		Cwd:        cwd,
		McpServers: []any{},
	})
	if err != nil {
		return err
	}

	var result acp.NewSessionResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("malformed session/new result: %w", err)
	}
	if result.SessionID == "" {
		return failf("session/new returned an empty session id")
	}

	r.sessionID = result.SessionID
	r.state = StateSessionActive
	r.logger.Info("session created", "sessionId", result.SessionID, "cwd", cwd)
	return nil
}

// Prompt sends one prompt turn and drains until its terminal response.
func (r *Runner) Prompt(text string) (*acp.TurnOutcome, error) {
	return r.promptTurn(text, r.Timeouts.Turn, 0)
}

// PromptWithTimeout is Prompt with an explicit turn deadline, for
// turns expected to run long.
func (r *Runner) PromptWithTimeout(text string, timeout time.Duration) (*acp.TurnOutcome, error) {
	return r.promptTurn(text, timeout, 0)
}

// PromptWithCancel sends a prompt, waits delay, then sends a
// session/cancel notification and keeps draining: the prompt's
// response must still arrive, whatever stop reason it carries.
// Cancellation is advisory; a non-cancelled outcome is for the caller
// to judge.
func (r *Runner) PromptWithCancel(text string, delay time.Duration) (*acp.TurnOutcome, error) {
	return r.promptTurn(text, r.Timeouts.Turn, delay)
}

func (r *Runner) promptTurn(text string, timeout, cancelAfter time.Duration) (*acp.TurnOutcome, error) {
	if r.state != StateSessionActive && r.state != StateTurnComplete {
		return nil, &StateError{Op: "prompt", State: r.state}
	}

	r.collector.Reset()
	r.cancelling = false

	id, err := r.client.Call(acp.MethodSessionPrompt, acp.PromptParams{
		SessionID: r.sessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	})
	if err != nil {
		return nil, err
	}
	r.state = StateAwaitingTurn
	r.logger.Info("prompt sent", "id", id, "text", text)

	if cancelAfter > 0 {
		// Updates arriving during the pause queue up in the transport;
		// nothing is lost by waiting before the drain starts.
		time.Sleep(cancelAfter)
		if err := r.client.Notify(acp.MethodSessionCancel, acp.CancelParams{SessionID: r.sessionID}); err != nil {
			return nil, err
		}
		r.cancelling = true
		r.logger.Info("cancel sent", "sessionId", r.sessionID)
	}

	resp, err := r.client.Drain(id, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		payload, _ := json.Marshal(resp)
		return nil, &rpc.ProtocolError{
			Reason:  fmt.Sprintf("error response to session/prompt: %s", resp.Error.Message),
			Payload: payload,
		}
	}

	outcome, err := r.collector.Finalize(resp.Result)
	if err != nil {
		return nil, err
	}
	r.state = StateTurnComplete
	r.cancelling = false
	r.logger.Info("turn complete", "stopReason", outcome.RawStopReason,
		"chunks", len(outcome.Chunks), "toolCalls", len(outcome.ToolCalls))
	return outcome, nil
}

// roundTrip issues a call and drains for its response, surfacing
// error-shaped responses as protocol failures.
func (r *Runner) roundTrip(method string, params any) (*wire.Message, error) {
	id, err := r.client.Call(method, params)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Drain(id, r.Timeouts.Call)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		payload, _ := json.Marshal(resp)
		return nil, &rpc.ProtocolError{
			Reason:  fmt.Sprintf("error response to %s: %s", method, resp.Error.Message),
			Payload: payload,
		}
	}
	return resp, nil
}

// Close terminates the agent process and releases resources. It is
// idempotent and runs on every exit path of a scenario.
func (r *Runner) Close() error {
	r.state = StateTerminated
	var err error
	if r.proc != nil {
		err = r.proc.Terminate()
	}
	if cerr := r.tracer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
