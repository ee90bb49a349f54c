package sshexec

import (
	"errors"
	"fmt"
)

// Stage names one step of a remote execution.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageConnect Stage = "connect"
	StageAuth    Stage = "authenticate"
	StageExec    Stage = "execute"
)

// Kind classifies a stage failure.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindRejected       Kind = "rejected"
	KindFailed         Kind = "failed"
	KindOutputTooLarge Kind = "output_too_large"
)

// ErrOutputTooLarge is wrapped by the StageError returned when command
// output exceeds the cap.
var ErrOutputTooLarge = errors.New("sshexec: output too large")

// StageError reports which stage of which host failed and how.
type StageError struct {
	Stage Stage
	Kind  Kind
	Host  string
	Err   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s %s on %s", e.Stage, e.Kind, e.Host)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// Timeout reports whether the stage ran out of time.
func (e *StageError) Timeout() bool { return e.Kind == KindTimeout }

// IsTimeout reports whether err is a StageError of kind timeout at stage.
// An empty stage matches any stage.
func IsTimeout(err error, stage Stage) bool {
	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindTimeout {
		return false
	}
	return stage == "" || se.Stage == stage
}
