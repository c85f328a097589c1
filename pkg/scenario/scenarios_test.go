package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/acpcheck/pkg/acp"
)

func promptText(p acp.PromptParams) string {
	var sb strings.Builder
	for _, block := range p.Prompt {
		sb.WriteString(block.Text)
	}
	return sb.String()
}

// scriptedAgent answers like a small but well-behaved coding agent:
// it remembers facts within a session, honors cancellation, and for
// the workflow scenario actually edits the fixture on disk.
func scriptedAgent(a *fakeAgent, id int64, p acp.PromptParams) {
	text := promptText(p)
	switch {
	case strings.Contains(text, "What is my name"):
		a.chunk("Your name is Alice.")
		a.finish(id, "end_turn")
	case strings.Contains(text, "What food do I like"):
		a.chunk("You like pizza.")
		a.finish(id, "end_turn")
	case strings.Contains(text, "create a plan"):
		a.plan("Read hello.py", "Edit hello.py", "Run hello.py")
		a.chunk("Plan created.")
		a.finish(id, "end_turn")
	case strings.Contains(text, "execute the plan"):
		path := filepath.Join(a.workdir(), "hello.py")
		a.toolCall("call-1", "Read hello.py", "read")
		a.toolUpdate("call-1", "completed")
		content, err := os.ReadFile(path)
		if err != nil {
			a.respondError(id, -32603, err.Error())
			return
		}
		edited := strings.ReplaceAll(string(content), "Hello World", "Hello Universe")
		a.toolCall("call-2", "Edit hello.py", "edit")
		if err := os.WriteFile(path, []byte(edited), 0644); err != nil {
			a.respondError(id, -32603, err.Error())
			return
		}
		a.toolUpdate("call-2", "completed")
		a.chunk("Edited hello.py and verified the change.")
		a.finish(id, "end_turn")
	case strings.Contains(text, "quantum physics"):
		for i := 0; i < 200; i++ {
			if a.cancelled.Load() {
				a.finish(id, "cancelled")
				return
			}
			a.chunk("Quantum physics is ")
			time.Sleep(10 * time.Millisecond)
		}
		a.finish(id, "end_turn")
	default:
		a.chunk("Hello from fake.")
		a.finish(id, "end_turn")
	}
}

func TestScenariosCanonicalOrder(t *testing.T) {
	var names []string
	for _, sc := range Scenarios() {
		names = append(names, sc.Name)
		assert.NotEmpty(t, sc.Description)
		assert.NotNil(t, sc.Run)
	}
	assert.Equal(t, []string{"basic", "cancel", "multi-turn", "workflow"}, names)
}

func TestByName(t *testing.T) {
	sc, ok := ByName("cancel")
	require.True(t, ok)
	assert.Equal(t, "cancel", sc.Name)

	_, ok = ByName("no-such-scenario")
	assert.False(t, ok)
}

func TestBasicScenario(t *testing.T) {
	r, _ := newTestRunner(t, scriptedAgent)
	require.NoError(t, runBasic(r))
}

func TestCancelScenario(t *testing.T) {
	r, _ := newTestRunner(t, scriptedAgent)
	require.NoError(t, runCancel(r))
}

func TestCancelScenarioFailsWhenAgentIgnoresCancel(t *testing.T) {
	r, _ := newTestRunner(t, func(a *fakeAgent, id int64, p acp.PromptParams) {
		a.chunk("ignoring your cancel")
		a.finish(id, "end_turn")
	})

	err := runCancel(r)
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Reason, "cancel")
}

func TestMultiTurnScenario(t *testing.T) {
	r, _ := newTestRunner(t, scriptedAgent)
	require.NoError(t, runMultiTurn(r))
}

func TestMultiTurnScenarioFailsOnForgetfulAgent(t *testing.T) {
	r, _ := newTestRunner(t, func(a *fakeAgent, id int64, p acp.PromptParams) {
		a.chunk("I have no idea, sorry.")
		a.finish(id, "end_turn")
	})

	err := runMultiTurn(r)
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Reason, "name")
}

func TestWorkflowScenario(t *testing.T) {
	r, _ := newTestRunner(t, scriptedAgent)
	require.NoError(t, runWorkflow(r))
}

func TestWorkflowScenarioFailsWithoutDiskEdit(t *testing.T) {
	// Agent that narrates a plan and tool calls but never touches the file.
	r, _ := newTestRunner(t, func(a *fakeAgent, id int64, p acp.PromptParams) {
		if strings.Contains(promptText(p), "create a plan") {
			a.plan("Read hello.py", "Edit hello.py", "Run hello.py")
		} else {
			a.toolCall("call-1", "Edit hello.py", "edit")
			a.chunk("I edited the file, trust me.")
		}
		a.finish(id, "end_turn")
	})

	err := runWorkflow(r)
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Reason, "not modified")
}

func TestWorkflowScenarioFailsWithoutPlan(t *testing.T) {
	r, _ := newTestRunner(t, func(a *fakeAgent, id int64, p acp.PromptParams) {
		a.chunk("I don't do plans.")
		a.finish(id, "end_turn")
	})

	err := runWorkflow(r)
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Reason, "plan")
}
