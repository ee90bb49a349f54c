// Package host defines remote hosts, host groups and their store contract.
package host

import (
	"net"
	"strconv"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/id"
)

const (
	DefaultUser = "root"
	DefaultPort = 22
)

// Host is a remote machine reachable over SSH.
type Host struct {
	fleetcron.Entity

	ID      id.HostID  `json:"id"`
	Name    string     `json:"name"`
	GroupID id.GroupID `json:"group_id,omitzero"`
	User    string     `json:"ssh_user"`
	Address string     `json:"ip"`
	Port    int        `json:"port"`

	// EncryptedPassword is the sealed password, see package secret.
	EncryptedPassword string `json:"-"`
}

// New returns a Host with defaults applied.
func New(name, address string, groupID id.GroupID) *Host {
	return &Host{
		Entity:  fleetcron.NewEntity(),
		ID:      id.NewHostID(),
		Name:    name,
		GroupID: groupID,
		User:    DefaultUser,
		Address: address,
		Port:    DefaultPort,
	}
}

// Addr returns the dialable host:port.
func (h *Host) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// Group is a named set of hosts that fleet jobs fan out over.
type Group struct {
	fleetcron.Entity

	ID          id.GroupID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
}

// NewGroup returns a Group with a fresh ID.
func NewGroup(name, description string) *Group {
	return &Group{
		Entity:      fleetcron.NewEntity(),
		ID:          id.NewGroupID(),
		Name:        name,
		Description: description,
	}
}
