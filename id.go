package fleetcron

import "github.com/xraph/fleetcron/id"

// ID is the primary identifier type for all fleetcron entities.
type ID = id.ID
