package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/tiancaiamao/acpcheck/pkg/config"
	"github.com/tiancaiamao/acpcheck/pkg/scenario"
)

func main() {
	agent := flag.String("agent", "", "agent command to launch (overrides config file)")
	agentArgs := flag.String("agent-args", "", "space-separated arguments for the agent command")
	scenarioName := flag.String("scenario", "all", "scenario to run (basic|cancel|multi-turn|workflow|all)")
	configPath := flag.String("config", "", "YAML config file path")
	turnTimeout := flag.Int("timeout", 0, "prompt turn timeout in seconds (overrides config file)")
	tracePath := flag.String("trace", "", "append every wire line to this file")
	list := flag.Bool("list", false, "list scenarios and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *list {
		for _, sc := range scenario.Scenarios() {
			fmt.Printf("%-12s %s\n", sc.Name, sc.Description)
		}
		return
	}

	// A .env next to the binary is a convenience for local runs.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	if *agent != "" {
		cfg.Agent.Command = *agent
	}
	if *agentArgs != "" {
		cfg.Agent.Args = strings.Fields(*agentArgs)
	}
	if *turnTimeout > 0 {
		cfg.Timeouts.TurnSeconds = *turnTimeout
	}
	if *tracePath != "" {
		cfg.TraceFile = *tracePath
	}
	if *debug {
		if cfg.Log == nil {
			cfg.Log = &config.LogConfig{}
		}
		cfg.Log.Level = "debug"
	}

	logger, err := cfg.Log.CreateLogger()
	if err != nil {
		slog.Error("logger error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if cfg.Agent.Command == "" {
		slog.Error("no agent command; use -agent or the config file")
		os.Exit(1)
	}

	scenarios, err := selectScenarios(*scenarioName)
	if err != nil {
		slog.Error("invalid scenario", "error", err)
		os.Exit(1)
	}

	failed := 0
	for _, sc := range scenarios {
		start := time.Now()
		slog.Info("scenario start", "name", sc.Name)
		if err := scenario.Execute(cfg, sc); err != nil {
			slog.Error("scenario failed", "name", sc.Name, "error", err,
				"elapsed", time.Since(start).Round(time.Millisecond))
			failed++
			continue
		}
		slog.Info("scenario passed", "name", sc.Name,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}

	if failed > 0 {
		slog.Error("conformance run failed", "failed", failed, "total", len(scenarios))
		os.Exit(1)
	}
	slog.Info("conformance run passed", "total", len(scenarios))
}

func selectScenarios(name string) ([]scenario.Scenario, error) {
	if name == "all" || name == "" {
		return scenario.Scenarios(), nil
	}
	sc, ok := scenario.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (valid: basic|cancel|multi-turn|workflow|all)", name)
	}
	return []scenario.Scenario{sc}, nil
}
