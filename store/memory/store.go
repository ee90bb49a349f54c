// Package memory provides in-memory implementations of store.Store and
// queue.Queue. Safe for concurrent access. Intended for unit testing and
// development.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/execlog"
	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
	"github.com/xraph/fleetcron/job"
)

var (
	_ job.Store     = (*Store)(nil)
	_ host.Store    = (*Store)(nil)
	_ execlog.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Definition
	hosts  map[string]*host.Host
	groups map[string]*host.Group
	logs   []*execlog.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Definition),
		hosts:  make(map[string]*host.Host),
		groups: make(map[string]*host.Group),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func cloneJob(d *job.Definition) *job.Definition {
	cp := *d
	if d.RetryCount != nil {
		n := *d.RetryCount
		cp.RetryCount = &n
	}
	if d.LastExecutedAt != nil {
		t := *d.LastExecutedAt
		cp.LastExecutedAt = &t
	}
	if d.NextExecuteAt != nil {
		t := *d.NextExecuteAt
		cp.NextExecuteAt = &t
	}
	return &cp
}

// CreateJob persists a new definition.
func (m *Store) CreateJob(_ context.Context, d *job.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	if _, exists := m.jobs[key]; exists {
		return fleetcron.ErrJobAlreadyExists
	}
	m.jobs[key] = cloneJob(d)
	return nil
}

// GetJob returns a copy of the definition.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, fleetcron.ErrJobNotFound
	}
	return cloneJob(d), nil
}

// ListJobs returns matching definitions ordered by next_execute_at then ID.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*job.Definition, 0, len(m.jobs))
	for _, d := range m.jobs {
		if opts.EnabledOnly && !d.Enabled {
			continue
		}
		if !opts.DueBefore.IsZero() && (d.NextExecuteAt == nil || d.NextExecuteAt.After(opts.DueBefore)) {
			continue
		}
		out = append(out, cloneJob(d))
	}

	slices.SortFunc(out, func(a, b *job.Definition) int {
		switch {
		case a.NextExecuteAt == nil && b.NextExecuteAt != nil:
			return 1
		case a.NextExecuteAt != nil && b.NextExecuteAt == nil:
			return -1
		case a.NextExecuteAt != nil && !a.NextExecuteAt.Equal(*b.NextExecuteAt):
			return a.NextExecuteAt.Compare(*b.NextExecuteAt)
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	return paginate(out, opts.Offset, opts.Limit), nil
}

// UpdateNextExecuteAt records the next fire time.
func (m *Store) UpdateNextExecuteAt(_ context.Context, jobID id.JobID, next time.Time) error {
	return m.updateJob(jobID, func(d *job.Definition) {
		t := next.UTC()
		d.NextExecuteAt = &t
	})
}

// MarkExecuted records the start of an execution.
func (m *Store) MarkExecuted(_ context.Context, jobID id.JobID, at time.Time) error {
	return m.updateJob(jobID, func(d *job.Definition) {
		t := at.UTC()
		d.LastExecutedAt = &t
	})
}

// SetEnabled flips the enabled flag.
func (m *Store) SetEnabled(_ context.Context, jobID id.JobID, enabled bool) error {
	return m.updateJob(jobID, func(d *job.Definition) { d.Enabled = enabled })
}

// DeleteJob removes a definition.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return fleetcron.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

func (m *Store) updateJob(jobID id.JobID, fn func(*job.Definition)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.jobs[jobID.String()]
	if !ok {
		return fleetcron.ErrJobNotFound
	}
	fn(d)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Host Store
// ──────────────────────────────────────────────────

// CreateGroup persists a new group.
func (m *Store) CreateGroup(_ context.Context, g *host.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := g.ID.String()
	if _, exists := m.groups[key]; exists {
		return fleetcron.ErrGroupAlreadyExists
	}
	cp := *g
	m.groups[key] = &cp
	return nil
}

// GetGroup returns a copy of the group.
func (m *Store) GetGroup(_ context.Context, groupID id.GroupID) (*host.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[groupID.String()]
	if !ok {
		return nil, fleetcron.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

// ListGroups returns every group ordered by ID.
func (m *Store) ListGroups(_ context.Context) ([]*host.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*host.Group, 0, len(m.groups))
	for _, g := range m.groups {
		cp := *g
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *host.Group) int { return cmp.Compare(a.ID.String(), b.ID.String()) })
	return out, nil
}

// CreateHost persists a new host.
func (m *Store) CreateHost(_ context.Context, h *host.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := h.ID.String()
	if _, exists := m.hosts[key]; exists {
		return fleetcron.ErrHostAlreadyExists
	}
	cp := *h
	m.hosts[key] = &cp
	return nil
}

// GetHost returns a copy of the host.
func (m *Store) GetHost(_ context.Context, hostID id.HostID) (*host.Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hosts[hostID.String()]
	if !ok {
		return nil, fleetcron.ErrHostNotFound
	}
	cp := *h
	return &cp, nil
}

// ListHostsByGroup returns a group's members ordered by ID.
func (m *Store) ListHostsByGroup(_ context.Context, groupID id.GroupID) ([]*host.Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*host.Host
	for _, h := range m.hosts {
		if h.GroupID.String() == groupID.String() {
			cp := *h
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *host.Host) int { return cmp.Compare(a.ID.String(), b.ID.String()) })
	return out, nil
}

// ──────────────────────────────────────────────────
// Execution log Store
// ──────────────────────────────────────────────────

// AppendExecutionLog appends an entry.
func (m *Store) AppendExecutionLog(_ context.Context, e *execlog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	if cp.ID.IsNil() {
		cp.ID = id.NewLogID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.logs = append(m.logs, &cp)
	return nil
}

// ListExecutionLogs returns entries newest first.
func (m *Store) ListExecutionLogs(_ context.Context, opts execlog.ListOpts) ([]*execlog.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*execlog.Entry
	for i := len(m.logs) - 1; i >= 0; i-- {
		e := m.logs[i]
		if !opts.JobID.IsNil() && e.JobID.String() != opts.JobID.String() {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return paginate(out, 0, opts.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
