package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jarvis-homelab/jarvis/internal/config"
)

// shutdownGrace is how long a graceful teardown is given before the
// process exits anyway, grounded on the teacher's runServe 30s budget.
const shutdownGrace = 30 * time.Second

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JARVIS backend: API, real-time hub, and telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe builds every component, starts the listeners and background
// pollers, and blocks until SIGINT/SIGTERM, tearing everything down
// within shutdownGrace. Grounded on the teacher's
// cmd/nexus/handlers_serve.go runServe: signal.NotifyContext + bounded
// shutdown context (the teacher's error channel is not carried over;
// Start returns bind errors directly).
func runServe(parent context.Context) error {
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	go a.retention.Run(ctx)
	if a.telemetry != nil {
		go a.telemetry.Run(ctx)
	}

	if err := a.apiServer.Start(":" + cfg.Port); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	a.shutdown(shutdownCtx)

	return nil
}
