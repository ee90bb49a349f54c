package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/queue"
	"github.com/xraph/fleetcron/store/postgres"
	"github.com/xraph/fleetcron/store/redis"
)

// Backends holds the connections opened from a Config.
type Backends struct {
	Store *postgres.Store
	Queue queue.Queue

	redis *goredis.Client
}

// Open connects to the database at cfg.DatabaseURL and picks the queue
// backend from cfg.QueueURL: redis:// and rediss:// use Redis, postgres://
// or an empty URL use the fleetcron_queue table in the same database.
func Open(ctx context.Context, cfg fleetcron.Config, logger *slog.Logger) (*Backends, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database url is required", fleetcron.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	b := &Backends{Store: st}

	scheme := ""
	if cfg.QueueURL != "" {
		u, err := url.Parse(cfg.QueueURL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("%w: queue url: %w", fleetcron.ErrInvalidConfig, err)
		}
		scheme = u.Scheme
	}

	switch scheme {
	case "redis", "rediss":
		q, client, err := redis.NewFromURL(cfg.QueueURL, redis.WithLogger(logger))
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		if err := q.Ping(ctx); err != nil {
			_ = client.Close()
			_ = st.Close()
			return nil, err
		}
		b.Queue, b.redis = q, client
	case "", "postgres", "postgresql":
		if cfg.QueueURL != "" && cfg.QueueURL != cfg.DatabaseURL {
			logger.Warn("postgres queue url differs from database url; using the database",
				slog.String("queue_url_scheme", scheme))
		}
		b.Queue = postgres.NewQueue(st.Pool(), logger)
	default:
		_ = st.Close()
		return nil, fmt.Errorf("%w: unsupported queue scheme %q", fleetcron.ErrInvalidConfig, scheme)
	}

	logger.Info("backends opened", slog.String("queue", queueKind(scheme)))
	return b, nil
}

// Close releases the queue client and the database pool.
func (b *Backends) Close() error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	errs = append(errs, b.Store.Close())
	return errors.Join(errs...)
}

func queueKind(scheme string) string {
	if scheme == "redis" || scheme == "rediss" {
		return "redis"
	}
	return "postgres"
}
