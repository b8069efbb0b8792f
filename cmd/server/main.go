package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/duelsync-server/internal/app"
	"github.com/vovakirdan/duelsync-server/internal/config"
	applog "github.com/vovakirdan/duelsync-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "duelsync-server",
		Short:         "Pairs two players in a room, syncs their clocks and relays their moves",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, overrides)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP API listen address")
	flags.StringVar(&overrides.WSAddr, "ws-addr", "", "WebSocket listen address")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.DatabasePath, "db", "", "sqlite database path for match results")
	flags.StringVar(&overrides.NATSURL, "nats-url", "", "NATS server URL for match events")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	return cmd
}

func run(ctx context.Context, configPath string, overrides config.Config) error {
	bootLogger := applog.New(overrides.LogLevel, "console")

	cfg, resolvedPath, err := config.Load(bootLogger, configPath)
	if err != nil {
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		bootLogger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().Str("config", resolvedPath).Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Str("ws_addr", cfg.WSAddr).Msg("starting duelsync server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
