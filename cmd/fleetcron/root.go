package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xraph/fleetcron"
	audithook "github.com/xraph/fleetcron/audit_hook"
	"github.com/xraph/fleetcron/engine"
	"github.com/xraph/fleetcron/observability"
)

var (
	configPath string
	cfg        fleetcron.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fleetcron",
	Short:         "Cron-scheduled SSH commands across a fleet of hosts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := fleetcron.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = fleetcron.NewLogger(os.Stderr, cfg)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("FLEETCRON_CONFIG"), "Path to a YAML config file; environment variables override it")
	rootCmd.AddCommand(workerCmd, apiCmd, migrateCmd, genkeyCmd, encryptCmd)
}

// openEngine connects the backends and builds an engine that reports to
// the default Prometheus registry and writes an audit trail to the log.
func openEngine(ctx context.Context) (*engine.Engine, *engine.Backends, error) {
	b, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := observability.RegisterPoolStats(prometheus.DefaultRegisterer, b.Store.Pool()); err != nil {
		_ = b.Close()
		return nil, nil, fmt.Errorf("register pool stats: %w", err)
	}
	eng, err := engine.Build(cfg, b.Store, b.Queue,
		engine.WithLogger(logger),
		engine.WithPrometheus(prometheus.DefaultRegisterer),
		engine.WithExtension(audithook.New(audithook.SlogRecorder(logger.With("component", "audit")),
			audithook.WithLogger(logger),
		)),
	)
	if err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	return eng, b, nil
}

// serve runs srv until ctx is done, then shuts it down within the
// configured shutdown timeout.
func serve(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	return nil
}

func shutdownTimeout() time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 30 * time.Second
}
