//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/execlog"
	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
	"github.com/xraph/fleetcron/queue"
	"github.com/xraph/fleetcron/queue/queuetest"
	"github.com/xraph/fleetcron/store/postgres"
)

// setupTestStore creates a Postgres container and returns a migrated Store.
func setupTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("fleetcron_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	// Migrate is idempotent.
	if migErr := s.Migrate(ctx); migErr != nil {
		t.Fatalf("second migrate: %v", migErr)
	}
	return s
}

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_JobsHostsLogs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := host.NewGroup("web", "")
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}
	h := host.New("web-1", "10.0.0.1", g.ID)
	h.EncryptedPassword = "aa.bb"
	if err := s.CreateHost(ctx, h); err != nil {
		t.Fatalf("create host: %v", err)
	}
	members, err := s.ListHostsByGroup(ctx, g.ID)
	if err != nil || len(members) != 1 || members[0].EncryptedPassword != "aa.bb" {
		t.Fatalf("list hosts: %v %v", members, err)
	}

	d := job.New("ping", "*/5 * * * * *", "uptime", job.WithGroup(g.ID), job.WithRetryCount(3))
	if err := s.CreateJob(ctx, d); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.CreateJob(ctx, d); !errors.Is(err, fleetcron.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got %v", err)
	}

	next := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)
	if err := s.UpdateNextExecuteAt(ctx, d.ID, next); err != nil {
		t.Fatal(err)
	}
	due, err := s.ListJobs(ctx, job.ListOpts{EnabledOnly: true, DueBefore: next.Add(time.Second)})
	if err != nil || len(due) != 1 {
		t.Fatalf("list due: %v %v", due, err)
	}
	if *due[0].RetryCount != 3 || !due[0].HostID.IsNil() || due[0].GroupID.String() != g.ID.String() {
		t.Fatalf("unexpected job %+v", due[0])
	}

	if err := s.SetEnabled(ctx, d.ID, false); err != nil {
		t.Fatal(err)
	}
	due, _ = s.ListJobs(ctx, job.ListOpts{EnabledOnly: true})
	if len(due) != 0 {
		t.Fatalf("disabled job listed: %v", due)
	}
	if err := s.SetEnabled(ctx, id.NewJobID(), true); !errors.Is(err, fleetcron.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	for i := range 3 {
		e := &execlog.Entry{JobID: d.ID, HostID: h.ID, Server: "10.0.0.1", Status: execlog.StatusFailed, ExitCode: i, Output: fmt.Sprint(i)}
		if err := s.AppendExecutionLog(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	logs, err := s.ListExecutionLogs(ctx, execlog.ListOpts{JobID: d.ID, Limit: 2})
	if err != nil || len(logs) != 2 {
		t.Fatalf("list logs: %v %v", logs, err)
	}
}

func TestQueue(t *testing.T) {
	s := setupTestStore(t)
	q := postgres.NewQueue(s.Pool(), nil)

	queuetest.Run(t, func(t *testing.T) queue.Queue {
		if err := q.Purge(context.Background()); err != nil {
			t.Fatalf("purge: %v", err)
		}
		return q
	})
}
