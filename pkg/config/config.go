// Package config loads harness configuration: the agent command under
// test, protocol timeouts and logging. Defaults are merged with an
// optional YAML file, and environment variables override both.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the harness configuration.
type Config struct {
	Agent    AgentConfig   `yaml:"agent"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Log      *LogConfig    `yaml:"log,omitempty"`

	// TraceFile, when set, records every wire line for diagnosis.
	TraceFile string `yaml:"traceFile,omitempty"`
}

// AgentConfig describes how to launch the agent under test.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"` // extra KEY=VALUE entries
}

// TimeoutConfig holds the protocol deadlines.
type TimeoutConfig struct {
	ReceiveSeconds      int `yaml:"receiveSeconds"`      // per-read deadline inside a drain loop
	CallSeconds         int `yaml:"callSeconds"`         // initialize / session/new responses
	TurnSeconds         int `yaml:"turnSeconds"`         // one prompt turn end to end
	WorkflowTurnSeconds int `yaml:"workflowTurnSeconds"` // tool-heavy turns take longer
	CancelDelayMillis   int `yaml:"cancelDelayMillis"`   // wait before session/cancel
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error
	File  string `yaml:"file,omitempty"`  // log file path (empty = stderr only)
}

// DefaultConfig returns the configuration used when no file is given.
// The timeouts are generous enough for an agent doing real model calls.
func DefaultConfig() *Config {
	return &Config{
		Timeouts: TimeoutConfig{
			ReceiveSeconds:      5,
			CallSeconds:         30,
			TurnSeconds:         60,
			WorkflowTurnSeconds: 120,
			CancelDelayMillis:   500,
		},
		Log: &LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from an optional YAML file and merges
// with environment variables. Environment variables take precedence
// over file values.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if val := os.Getenv("ACPCHECK_AGENT"); val != "" {
		cfg.Agent.Command = val
	}
	if val := os.Getenv("ACPCHECK_AGENT_ARGS"); val != "" {
		cfg.Agent.Args = strings.Fields(val)
	}
	if val := os.Getenv("ACPCHECK_TURN_TIMEOUT"); val != "" {
		secs, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid ACPCHECK_TURN_TIMEOUT: %w", err)
		}
		cfg.Timeouts.TurnSeconds = secs
	}
	if val := os.Getenv("ACPCHECK_LOG_LEVEL"); val != "" {
		if cfg.Log == nil {
			cfg.Log = &LogConfig{}
		}
		cfg.Log.Level = val
	}

	return cfg, nil
}

// ReceiveDeadline is the per-read deadline inside a drain loop.
func (t TimeoutConfig) ReceiveDeadline() time.Duration {
	return time.Duration(t.ReceiveSeconds) * time.Second
}

// CallTimeout bounds non-streaming calls such as initialize.
func (t TimeoutConfig) CallTimeout() time.Duration {
	return time.Duration(t.CallSeconds) * time.Second
}

// TurnTimeout bounds a whole prompt turn.
func (t TimeoutConfig) TurnTimeout() time.Duration {
	return time.Duration(t.TurnSeconds) * time.Second
}

// WorkflowTurnTimeout bounds a tool-heavy prompt turn.
func (t TimeoutConfig) WorkflowTurnTimeout() time.Duration {
	return time.Duration(t.WorkflowTurnSeconds) * time.Second
}

// CancelDelay is how long the cancel scenario waits before sending
// session/cancel.
func (t TimeoutConfig) CancelDelay() time.Duration {
	return time.Duration(t.CancelDelayMillis) * time.Millisecond
}

// CreateLogger creates a logger from the log configuration. Diagnostics
// go to stderr so that only protocol traffic touches the agent pipes;
// a file can be added on top.
func (c *LogConfig) CreateLogger() (*slog.Logger, error) {
	if c == nil {
		c = &LogConfig{Level: "info"}
	}

	var out io.Writer = os.Stderr
	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(c.Level)})
	return slog.New(handler), nil
}

// ParseLevel parses a level string, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
