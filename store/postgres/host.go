package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
)

const hostColumns = `id, name, group_id, ssh_user, address, port, password_encrypted, created_at, updated_at`

// CreateGroup persists a new group.
func (s *Store) CreateGroup(ctx context.Context, g *host.Group) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fleetcron_groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		g.ID.String(), g.Name, g.Description, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fleetcron.ErrGroupAlreadyExists
		}
		return fmt.Errorf("fleetcron/postgres: create group: %w", err)
	}
	return nil
}

// GetGroup reads a group.
func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*host.Group, error) {
	var g host.Group
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM fleetcron_groups WHERE id = $1`, groupID.String(),
	).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fleetcron.ErrGroupNotFound
		}
		return nil, fmt.Errorf("fleetcron/postgres: get group: %w", err)
	}
	return &g, nil
}

// ListGroups returns every group ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]*host.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM fleetcron_groups ORDER BY id COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list groups: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*host.Group, error) {
		var g host.Group
		err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
		return &g, err
	})
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list groups: %w", err)
	}
	return out, nil
}

// CreateHost persists a new host.
func (s *Store) CreateHost(ctx context.Context, h *host.Host) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fleetcron_hosts (`+hostColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID.String(), h.Name, h.GroupID, h.User, h.Address, h.Port, h.EncryptedPassword,
		h.CreatedAt, h.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isDuplicateKey(err):
		return fleetcron.ErrHostAlreadyExists
	case isForeignKeyViolation(err):
		return fmt.Errorf("fleetcron/postgres: create host: %w", fleetcron.ErrGroupNotFound)
	default:
		return fmt.Errorf("fleetcron/postgres: create host: %w", err)
	}
}

// GetHost reads a host.
func (s *Store) GetHost(ctx context.Context, hostID id.HostID) (*host.Host, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+hostColumns+` FROM fleetcron_hosts WHERE id = $1`, hostID.String())
	h, err := scanHost(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fleetcron.ErrHostNotFound
		}
		return nil, fmt.Errorf("fleetcron/postgres: get host: %w", err)
	}
	return h, nil
}

// ListHostsByGroup returns a group's members ordered by ID.
func (s *Store) ListHostsByGroup(ctx context.Context, groupID id.GroupID) ([]*host.Host, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+hostColumns+` FROM fleetcron_hosts
		WHERE group_id = $1 ORDER BY id COLLATE "C"`, groupID.String())
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list hosts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*host.Host, error) {
		return scanHost(row)
	})
	if err != nil {
		return nil, fmt.Errorf("fleetcron/postgres: list hosts: %w", err)
	}
	return out, nil
}

func scanHost(row pgx.Row) (*host.Host, error) {
	var (
		h    host.Host
		port int32
	)
	err := row.Scan(&h.ID, &h.Name, &h.GroupID, &h.User, &h.Address, &port, &h.EncryptedPassword,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.Port = int(port)
	return &h, nil
}
