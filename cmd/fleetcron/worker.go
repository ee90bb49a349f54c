package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/fleetcron/observability"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Reconcile schedules and execute due jobs until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, b, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		if err := eng.Start(ctx); err != nil {
			return err
		}
		logger.Info("worker started", slog.String("worker_id", eng.Pool().WorkerID().String()))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return serve(gctx, observability.NewServer(cfg.MetricsListenAddr, nil), "metrics server")
		})
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout())
			defer cancel()
			logger.Info("worker stopping")
			return eng.Stop(stopCtx)
		})
		return g.Wait()
	},
}
