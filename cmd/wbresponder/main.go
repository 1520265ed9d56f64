package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ganz677/wb/internal/app"
	"github.com/ganz677/wb/internal/config"
	"github.com/ganz677/wb/internal/logging"
	"github.com/ganz677/wb/internal/telemetry"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "wbresponder",
	Short:         "Answer Wildberries feedback with generated replies",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the application and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, application *app.Application) error) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdown()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	return fn(ctx, application)
}
