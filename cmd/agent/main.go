package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/gpumon/gpumon-agent/internal/agent"
	"github.com/gpumon/gpumon-agent/internal/config"
)

func main() {
	// 1. Load and validate config.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Create context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	slog.Info("gpumon-agent starting",
		"version", config.ModuleVersion,
		"agent_id", cfg.AgentID,
		"refresh_interval", cfg.RefreshInterval,
		"listen_port", cfg.ListenPort,
	)

	// 3. Discover devices and build the component graph.
	ag, err := agent.New(&cfg)
	if err != nil {
		slog.Error("agent initialization failed", "error", err)
		os.Exit(1)
	}

	// 4. Run until the context is canceled; Run handles teardown.
	if err := ag.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}
