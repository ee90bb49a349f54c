package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/fleetcron/api"
	"github.com/xraph/fleetcron/observability"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API for hosts, jobs and ad-hoc commands",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, b, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		srv := &http.Server{
			Addr:              cfg.HTTPListenAddr,
			Handler:           api.New(eng, api.WithPrometheus(prometheus.DefaultRegisterer)).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return serve(gctx, srv, "api server") })
		g.Go(func() error {
			return serve(gctx, observability.NewServer(cfg.MetricsListenAddr, nil), "metrics server")
		})
		return g.Wait()
	},
}
