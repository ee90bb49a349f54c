package fleetcron

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("fleetcron: no store configured")
	ErrNoQueue         = errors.New("fleetcron: no queue configured")
	ErrMigrationFailed = errors.New("fleetcron: migration failed")

	// Not found errors.
	ErrJobNotFound   = errors.New("fleetcron: job not found")
	ErrHostNotFound  = errors.New("fleetcron: host not found")
	ErrGroupNotFound = errors.New("fleetcron: group not found")

	// Validation errors, surfaced when a definition is created.
	ErrInvalidTarget   = errors.New("fleetcron: job needs a host or a group")
	ErrInvalidSchedule = errors.New("fleetcron: invalid cron expression")
	ErrEmptyGroup      = errors.New("fleetcron: group has no hosts")
	ErrInvalidConfig   = errors.New("fleetcron: invalid config")

	// Conflict errors.
	ErrJobAlreadyExists   = errors.New("fleetcron: job already exists")
	ErrHostAlreadyExists  = errors.New("fleetcron: host already exists")
	ErrGroupAlreadyExists = errors.New("fleetcron: group already exists")

	// Execution errors.
	ErrJobDisabled        = errors.New("fleetcron: job disabled")
	ErrNonZeroExit        = errors.New("fleetcron: command exited non-zero")
	ErrMaxRetriesExceeded = errors.New("fleetcron: max retries exceeded")
)
