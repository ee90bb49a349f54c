package sshexec

import (
	"context"
	"encoding/json"
	"io"
	"iter"

	"github.com/xraph/fleetcron/host"
	"github.com/xraph/fleetcron/id"
)

// Record is one host's outcome in a fleet run. A host that failed before
// producing an exit status reports exit code 1 with the error text as
// output.
type Record struct {
	HostID   id.HostID `json:"-"`
	Server   string    `json:"server"`
	Output   string    `json:"output"`
	ExitCode int       `json:"exit_code"`
	Err      error     `json:"-"`
}

func errorRecord(h *host.Host, err error) Record {
	return Record{HostID: h.ID, Server: h.Address, Output: err.Error(), ExitCode: 1, Err: err}
}

// Stream delivers fleet records as hosts finish.
type Stream struct {
	ch    chan Record
	hosts int
}

func newStream(hosts, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 1
	}
	return &Stream{ch: make(chan Record, buffer), hosts: hosts}
}

// send delivers r unless ctx ends first, so an abandoned stream does not
// leak producers.
func (s *Stream) send(ctx context.Context, r Record) {
	select {
	case s.ch <- r:
	case <-ctx.Done():
	}
}

// Hosts returns the number of hosts in the run.
func (s *Stream) Hosts() int { return s.hosts }

// Records returns the record channel. It closes after the last host.
func (s *Stream) Records() <-chan Record { return s.ch }

// All ranges over records in completion order.
func (s *Stream) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for r := range s.ch {
			if !yield(r) {
				go s.drain()
				return
			}
		}
	}
}

// Collect waits for every host and returns all records.
func (s *Stream) Collect() []Record {
	out := make([]Record, 0, s.hosts)
	for r := range s.ch {
		out = append(out, r)
	}
	return out
}

// WriteNDJSON writes one JSON object per line as records arrive, flushing
// after each line when w supports it.
func (s *Stream) WriteNDJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	flusher, _ := w.(interface{ Flush() })
	for r := range s.All() {
		if err := enc.Encode(r); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}

// Failed reports whether every record in rs is an error or a non-zero
// exit.
func Failed(rs []Record) bool {
	for _, r := range rs {
		if r.Err == nil && r.ExitCode == 0 {
			return false
		}
	}
	return true
}

func (s *Stream) drain() {
	for range s.ch {
	}
}
