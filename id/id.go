// Package id defines TypeID-based identity types for fleetcron entities.
//
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix". Their
// string form doubles as the queue member, so lexical order of job ids is
// the claim tie-break among jobs due at the same millisecond.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixJob    Prefix = "job"
	PrefixHost   Prefix = "host"
	PrefixGroup  Prefix = "grp"
	PrefixLog    Prefix = "xlog"
	PrefixWorker Prefix = "wkr"
)

// ID is a prefix-qualified, globally unique identifier.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string such as "job_01h2xcejqtf2nbrexx3vqjhp41".
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Entity aliases
// ──────────────────────────────────────────────────

// JobID identifies a scheduled job definition (prefix "job").
type JobID = ID

// HostID identifies a remote host (prefix "host").
type HostID = ID

// GroupID identifies a host group, i.e. a fleet (prefix "grp").
type GroupID = ID

// LogID identifies an execution log entry (prefix "xlog").
type LogID = ID

// WorkerID identifies a dispatch worker process (prefix "wkr").
type WorkerID = ID

func NewJobID() ID    { return New(PrefixJob) }
func NewHostID() ID   { return New(PrefixHost) }
func NewGroupID() ID  { return New(PrefixGroup) }
func NewLogID() ID    { return New(PrefixLog) }
func NewWorkerID() ID { return New(PrefixWorker) }

func ParseJobID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixJob) }
func ParseHostID(s string) (ID, error)  { return ParseWithPrefix(s, PrefixHost) }
func ParseGroupID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGroup) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// IsZero reports whether this ID is the zero value; used by omitzero.
func (i ID) IsZero() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil maps to NULL so optional foreign keys
// (a job's host or group) store correctly.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
