package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/windlink/internal/bridge"
	"github.com/nextlevelbuilder/windlink/internal/config"
	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/server"
	"github.com/nextlevelbuilder/windlink/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func runServe() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "windlink", Version, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	resolver := creds.NewResolver()
	engine := bridge.New(resolver)
	srv := server.New(cfg, engine, resolver)

	if err := srv.Start(ctx); err != nil {
		// A busy port means another instance already serves this machine.
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
