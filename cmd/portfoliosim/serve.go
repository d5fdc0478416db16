package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/portfoliosim/internal/infrastructure/db"
	httpserver "github.com/sawpanic/portfoliosim/internal/interfaces/http"
	"github.com/sawpanic/portfoliosim/internal/metrics"
	"github.com/sawpanic/portfoliosim/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest run's artifacts and metrics over HTTP",
		Long: `Starts a read-only server with /health, /runs/latest/equity,
/runs/latest/trades, /runs/latest/summary and /metrics. It reads the
artifacts written by 'run' and never touches simulation state.`,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	cmd.Flags().String("output", "", "Artifact root directory (overrides output.dir)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Dir, _ = cmd.Flags().GetString("output")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []httpserver.Option
	if cfg.Database.Enabled {
		manager, err := db.NewManager(ctx, cfg.Database, persistence.DefaultBreakerConfig())
		if err != nil {
			log.Warn().Err(err).Msg("Run sink unavailable, health will not report it")
		} else {
			defer manager.Close()
			opts = append(opts, httpserver.WithSinkHealth(manager.Health))
		}
	}

	serverCfg := httpserver.DefaultServerConfig()
	serverCfg.Addr = cfg.HTTP.Addr
	serverCfg.RateLimit = cfg.HTTP.RateLimit
	serverCfg.Burst = cfg.HTTP.Burst
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout

	server := httpserver.NewServer(serverCfg, cfg.Output.Dir, metrics.NewRegistry(), opts...)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
