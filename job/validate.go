package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/fleetcron"
	"github.com/xraph/fleetcron/host"
)

// Validate checks the fields of d and that every referenced target exists.
// A job naming both a host and a group has both checked.
func Validate(ctx context.Context, d *Definition, hosts host.Store) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("job: name is required")
	}
	if strings.TrimSpace(d.Command) == "" {
		return errors.New("job: command is required")
	}
	if d.TimeoutSeconds < 0 {
		return errors.New("job: timeout must not be negative")
	}
	if d.RetryCount != nil && *d.RetryCount < 0 {
		return errors.New("job: retry_count must not be negative")
	}
	if d.HostID.IsNil() && d.GroupID.IsNil() {
		return fleetcron.ErrInvalidTarget
	}
	if !d.HostID.IsNil() {
		if _, err := hosts.GetHost(ctx, d.HostID); err != nil {
			return fmt.Errorf("job: host %s: %w", d.HostID, err)
		}
	}
	if !d.GroupID.IsNil() {
		if _, err := hosts.GetGroup(ctx, d.GroupID); err != nil {
			return fmt.Errorf("job: group %s: %w", d.GroupID, err)
		}
	}
	return nil
}
