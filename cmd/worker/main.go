package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"governor/internal/app/bootstrap"
	"governor/internal/platform/config"

	"github.com/spf13/cobra"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring against the durable outbox.
// 3) Relay outbox events to the broker until SIGINT/SIGTERM.
func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "governor-worker",
		Short:         "Relay governance outbox events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := bootstrap.NewLogger(cfg, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildWorker(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap worker: %w", err)
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("worker shutdown close failed",
						"event", "worker_close_failed",
						"module", "cmd/worker",
						"layer", "platform",
						"error", err.Error(),
					)
				}
			}()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("GOVERNOR_CONFIG"), "YAML config file path")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
