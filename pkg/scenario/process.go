package scenario

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// AgentProcess is the agent binary under test, launched with its stdio
// pipes captured. Stdin and stdout carry the protocol; stderr passes
// through to the harness's stderr and is not part of the contract.
type AgentProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	once sync.Once
	werr error
}

// StartAgent launches the agent. extraEnv entries (KEY=VALUE) are
// appended to the harness's environment.
func StartAgent(command string, args []string, extraEnv []string) (*AgentProcess, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent %s: %w", command, err)
	}

	slog.Debug("started agent", "command", command, "args", args, "pid", cmd.Process.Pid)
	return &AgentProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Stdin is the agent's input stream.
func (p *AgentProcess) Stdin() io.Writer { return p.stdin }

// Stdout is the agent's output stream.
func (p *AgentProcess) Stdout() io.Reader { return p.stdout }

// Terminate kills the agent and awaits its exit. It is idempotent and
// must run on every exit path so no scenario leaks a process.
func (p *AgentProcess) Terminate() error {
	p.once.Do(func() {
		_ = p.stdin.Close()
		if err := p.cmd.Process.Kill(); err != nil && !alreadyFinished(err) {
			p.werr = fmt.Errorf("failed to kill agent: %w", err)
		}
		// Wait reaps the process; its error reflects the kill, not a
		// harness failure.
		_ = p.cmd.Wait()
		slog.Debug("agent terminated", "pid", p.cmd.Process.Pid)
	})
	return p.werr
}

func alreadyFinished(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
