// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"errors"
	"fmt"
)

const (
	// StateCreated indicates the handle exists but Start has never been called.
	StateCreated State = iota
	// StateStarting indicates Start is waiting for the server to become ready.
	StateStarting
	// StateRunning indicates the server reported readiness.
	StateRunning
	// StateStopping indicates Stop is tearing the server down.
	StateStopping
	// StateStopped indicates the server exited; the handle may be started again.
	StateStopped
	// StateFailed indicates the last start attempt or run failed; the handle may be started again.
	StateFailed
)

var (
	// ErrInvalidState is returned when a State value is not one of the defined lifecycle states.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition is returned when a lifecycle transition is not
	// permitted from the current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

type (
	// State represents the lifecycle state of a server handle.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	// It wraps ErrInvalidState for errors.Is() compatibility.
	InvalidStateError struct {
		Value State
	}

	// TransitionError reports a rejected transition. It wraps
	// ErrInvalidTransition.
	TransitionError struct {
		From State
		To   State
	}
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid: 0=created, 1=starting, 2=running, 3=stopping, 4=stopped, 5=failed)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Error implements the error interface for TransitionError.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move server from %s to %s", e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Validate returns nil if the State is one of the defined lifecycle states,
// or an error wrapping ErrInvalidState if it is not.
func (s State) Validate() error {
	switch s {
	case StateCreated, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsTerminal returns true for Stopped and Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// CanStart reports whether Start may be called from this state.
func (s State) CanStart() bool {
	return s == StateCreated || s.IsTerminal()
}
