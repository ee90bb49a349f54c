package observability

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/fleetcron/queue"
)

// RegisterPoolStats exposes pgx connection pool statistics as gauges.
func RegisterPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return fn(pool.Stat())
		})
	}
	for _, c := range []prometheus.Collector{
		gauge("pgxpool_acquired_conns", "Number of currently acquired connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("pgxpool_idle_conns", "Number of idle connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("pgxpool_total_conns", "Total number of connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("pgxpool_max_conns", "Maximum number of connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterQueueDepth exposes the size of both queue sets, read on scrape.
// A failed read reports -1.
func RegisterQueueDepth(reg prometheus.Registerer, q queue.Queue) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	depth := func(set string) float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		entries, err := q.Entries(ctx, set)
		if err != nil {
			return -1
		}
		return float64(len(entries))
	}
	for _, set := range []string{queue.SetPending, queue.SetProcessing} {
		c := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_depth",
			Help:        "Entries in a near-term queue set.",
			ConstLabels: prometheus.Labels{"set": set},
		}, func() float64 { return depth(set) })
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
