package store

import (
	"context"

	"github.com/xraph/fleetcron/execlog"
	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/job"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store
	host.Store
	execlog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
