package job

import (
	"time"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/id"
)

// Option is a functional option for building a Definition.
type Option func(*Definition)

// New builds an enabled Definition with a fresh ID.
func New(name, schedule, command string, opts ...Option) *Definition {
	d := &Definition{
		Entity:   fleetcron.NewEntity(),
		ID:       id.NewJobID(),
		Name:     name,
		Schedule: schedule,
		Command:  command,
		Enabled:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithHost targets a single host.
func WithHost(hostID id.HostID) Option {
	return func(d *Definition) { d.HostID = hostID }
}

// WithGroup targets every host in a group.
func WithGroup(groupID id.GroupID) Option {
	return func(d *Definition) { d.GroupID = groupID }
}

// WithDescription sets a free-form description.
func WithDescription(s string) Option {
	return func(d *Definition) { d.Description = s }
}

// WithTimeout overrides the execute-stage timeout. Sub-second values round
// up to one second.
func WithTimeout(t time.Duration) Option {
	return func(d *Definition) {
		d.TimeoutSeconds = int((t + time.Second - 1) / time.Second)
	}
}

// WithRetryCount sets the retry budget and enables disable-on-exhaustion.
func WithRetryCount(n int) Option {
	return func(d *Definition) { d.RetryCount = &n }
}

// WithDisabled creates the job disabled.
func WithDisabled() Option {
	return func(d *Definition) { d.Enabled = false }
}
