package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gatewayapp "github.com/runebook/runebook-gateway/internal/app"
	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/telemetry"
)

const (
	defaultAddress         = ":8080"
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway API server",
		Long: `Start the gateway API server.

The server requires a configuration file (--config) listing the guide sources
and, optionally, the Data Dragon mirror, cache bounds, snapshot storage, patch
watcher and telemetry settings. Every flag can also be set through a RUNEBOOK_
prefixed environment variable (e.g. RUNEBOOK_ADDRESS).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("address", defaultAddress, "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML, JSON or HuJSON)")

	// binding only fails on a nil flag
	_ = v.BindPFlag("address", cmd.Flags().Lookup("address"))
	_ = v.BindPFlag("config", cmd.Flags().Lookup("config"))

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := v.GetString("config")
	if configPath == "" {
		return fmt.Errorf("a configuration file is required (--config or %s_CONFIG)", EnvPrefix)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"sources", cfg.SourceNames(),
		"storage", cfg.Storage.GetType())

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	app, err := gatewayapp.NewGatewayApp(ctx,
		gatewayapp.WithConfig(cfg),
		gatewayapp.WithAddress(v.GetString("address")),
		gatewayapp.WithTelemetry(tel),
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		slog.Error("Failed to stop gateway", "error", err)
	}
	return serveErr
}
