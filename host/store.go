package host

import (
	"context"

	"github.com/xraph/fleetcron/id"
)

// Store defines the persistence contract for hosts and groups.
type Store interface {
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup returns fleetcron.ErrGroupNotFound when absent.
	GetGroup(ctx context.Context, groupID id.GroupID) (*Group, error)

	ListGroups(ctx context.Context) ([]*Group, error)

	CreateHost(ctx context.Context, h *Host) error

	// GetHost returns fleetcron.ErrHostNotFound when absent.
	GetHost(ctx context.Context, hostID id.HostID) (*Host, error)

	// ListHostsByGroup returns the members of a group ordered by ID, which
	// is creation order. The first member supplies the fleet credential.
	ListHostsByGroup(ctx context.Context, groupID id.GroupID) ([]*Host, error)
}
