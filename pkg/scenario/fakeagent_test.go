package scenario

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/acpcheck/pkg/acp"
	"github.com/tiancaiamao/acpcheck/pkg/config"
	"github.com/tiancaiamao/acpcheck/pkg/wire"
)

// promptFunc scripts how the fake agent answers one prompt turn. It
// runs on its own goroutine so the fake keeps reading (and can observe
// session/cancel) while a turn is in flight.
type promptFunc func(a *fakeAgent, id int64, p acp.PromptParams)

// fakeAgent speaks the agent side of the protocol over in-process
// pipes, in place of a real subprocess.
type fakeAgent struct {
	t        *testing.T
	mu       sync.Mutex // serializes writes to the harness
	out      *io.PipeWriter
	onPrompt promptFunc

	cancelled atomic.Bool
	cwdMu     sync.Mutex
	cwd       string
}

// newTestRunner wires a runner to a fake agent and tightens the
// deadlines so failing tests do not sit on full protocol timeouts.
func newTestRunner(t *testing.T, onPrompt promptFunc) (*Runner, *fakeAgent) {
	agentStdin, harnessOut := io.Pipe()
	harnessIn, agentStdout := io.Pipe()

	r := NewRunnerIO(config.DefaultConfig(), harnessOut, harnessIn)
	r.Timeouts = Timeouts{
		Receive:      50 * time.Millisecond,
		Call:         2 * time.Second,
		Turn:         5 * time.Second,
		WorkflowTurn: 5 * time.Second,
		CancelDelay:  100 * time.Millisecond,
	}
	r.client.SetReceiveDeadline(r.Timeouts.Receive)

	a := &fakeAgent{t: t, out: agentStdout, onPrompt: onPrompt}
	go a.serve(agentStdin)
	t.Cleanup(func() {
		agentStdin.Close()
		agentStdout.Close()
	})
	return r, a
}

func (a *fakeAgent) serve(in *io.PipeReader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var msg wire.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		switch msg.Method {
		case acp.MethodInitialize:
			id, _ := msg.IDInt64()
			a.respond(id, acp.InitializeResult{
				ProtocolVersion: acp.ProtocolVersion,
				AgentInfo:       acp.AgentInfo{Name: "fake-agent", Version: "0.0.1"},
			})
		case acp.MethodSessionNew:
			var p acp.NewSessionParams
			_ = json.Unmarshal(msg.Params, &p)
			a.cwdMu.Lock()
			a.cwd = p.Cwd
			a.cwdMu.Unlock()
			id, _ := msg.IDInt64()
			a.respond(id, acp.NewSessionResult{SessionID: "sess-fake-1"})
		case acp.MethodSessionPrompt:
			var p acp.PromptParams
			_ = json.Unmarshal(msg.Params, &p)
			id, _ := msg.IDInt64()
			a.cancelled.Store(false)
			if a.onPrompt != nil {
				go a.onPrompt(a, id, p)
			}
		case acp.MethodSessionCancel:
			a.cancelled.Store(true)
		}
	}
}

func (a *fakeAgent) workdir() string {
	a.cwdMu.Lock()
	defer a.cwdMu.Unlock()
	return a.cwd
}

func (a *fakeAgent) send(payload any) {
	b, err := json.Marshal(payload)
	require.NoError(a.t, err)
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.out.Write(append(b, '\n'))
}

func (a *fakeAgent) respond(id int64, result any) {
	b, err := json.Marshal(result)
	require.NoError(a.t, err)
	a.send(map[string]any{"jsonrpc": "2.0", "id": id, "result": json.RawMessage(b)})
}

func (a *fakeAgent) respondError(id int64, code int, message string) {
	a.send(map[string]any{"jsonrpc": "2.0", "id": id,
		"error": map[string]any{"code": code, "message": message}})
}

func (a *fakeAgent) finish(id int64, stopReason string) {
	a.respond(id, acp.PromptResult{StopReason: stopReason})
}

func (a *fakeAgent) update(update map[string]any) {
	a.send(map[string]any{
		"jsonrpc": "2.0",
		"method":  acp.MethodSessionUpdate,
		"params": map[string]any{
			"sessionId": "sess-fake-1",
			"update":    update,
		},
	})
}

func (a *fakeAgent) chunk(text string) {
	a.update(map[string]any{
		"sessionUpdate": acp.UpdateAgentMessageChunk,
		"content":       map[string]any{"type": "text", "text": text},
	})
}

func (a *fakeAgent) plan(entries ...string) {
	list := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]any{"content": e, "status": "pending"})
	}
	a.update(map[string]any{"sessionUpdate": acp.UpdatePlan, "entries": list})
}

func (a *fakeAgent) toolCall(id, title, kind string) {
	a.update(map[string]any{
		"sessionUpdate": acp.UpdateToolCall,
		"toolCallId":    id,
		"title":         title,
		"kind":          kind,
	})
}

func (a *fakeAgent) toolUpdate(id, status string) {
	a.update(map[string]any{
		"sessionUpdate": acp.UpdateToolCallUpdate,
		"toolCallId":    id,
		"status":        status,
	})
}
