// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Base tracks the lifecycle of one server handle. Handles embed it and drive
// the transitions from their Start and Stop methods.
//
// A Base may be restarted: once Stopped or Failed, TransitionToStarting
// begins a new cycle with a fresh readiness channel.
type Base struct {
	// State management (atomic for lock-free reads)
	state atomic.Int32

	// Guards the per-cycle fields below.
	stateMu sync.Mutex

	wg           sync.WaitGroup
	startedCh    chan struct{}
	lastErr      error
	cycles       int
	onTransition func(from, to State)
}

// NewBase creates a Base in the Created state.
func NewBase(opts ...Option) *Base {
	b := &Base{
		startedCh: make(chan struct{}),
	}
	b.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// State returns the current state (atomic, lock-free read).
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning returns true if the handle is in the Running state.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// LastError returns the error recorded by the most recent TransitionToFailed,
// or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// Cycles returns how many times the handle entered Starting.
func (b *Base) Cycles() int {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.cycles
}

// TransitionToStarting moves the handle from Created, Stopped or Failed into
// Starting. A cancelled ctx fails the handle without starting a cycle.
func (b *Base) TransitionToStarting(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("context cancelled before start: %w", err)
		b.TransitionToFailed(err)
		return err
	}

	b.stateMu.Lock()
	from := b.State()
	if !from.CanStart() || !b.state.CompareAndSwap(int32(from), int32(StateStarting)) {
		b.stateMu.Unlock()
		return &TransitionError{From: from, To: StateStarting}
	}
	if from != StateCreated {
		b.startedCh = make(chan struct{})
	}
	b.lastErr = nil
	b.cycles++
	b.stateMu.Unlock()

	b.notify(from, StateStarting)
	return nil
}

// TransitionToRunning marks the handle as running and closes the readiness
// channel. It reports false if the handle was not Starting.
func (b *Base) TransitionToRunning() bool {
	b.stateMu.Lock()
	if !b.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		b.stateMu.Unlock()
		return false
	}
	close(b.startedCh)
	b.stateMu.Unlock()

	b.notify(StateStarting, StateRunning)
	return true
}

// TransitionToFailed records err and marks the handle as failed.
func (b *Base) TransitionToFailed(err error) {
	b.stateMu.Lock()
	b.lastErr = err
	from := State(b.state.Swap(int32(StateFailed)))
	b.stateMu.Unlock()

	if from != StateFailed {
		b.notify(from, StateFailed)
	}
}

// TransitionToStopping moves a Starting or Running handle into Stopping.
// It returns false when there is nothing to stop; a never-started handle is
// left in Created so it can still be started.
func (b *Base) TransitionToStopping() bool {
	for {
		current := b.State()
		switch current {
		case StateStarting, StateRunning:
			if !b.state.CompareAndSwap(int32(current), int32(StateStopping)) {
				continue
			}
			b.notify(current, StateStopping)
			return true
		default:
			return false
		}
	}
}

// TransitionToStopped marks the handle as stopped. Must be called after every
// goroutine tracked by AddGoroutine has exited.
func (b *Base) TransitionToStopped() {
	from := State(b.state.Swap(int32(StateStopped)))
	if from != StateStopped {
		b.notify(from, StateStopped)
	}
}

// WaitForReady blocks until the current cycle reaches Running or ctx is done.
func (b *Base) WaitForReady(ctx context.Context) error {
	select {
	case <-b.StartedChannel():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for server ready: %w", ctx.Err())
	}
}

// StartedChannel returns the readiness channel of the current cycle. It is
// closed when the handle transitions to Running.
func (b *Base) StartedChannel() <-chan struct{} {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.startedCh
}

// AddGoroutine increments the WaitGroup counter.
// Must be called before starting a goroutine.
func (b *Base) AddGoroutine() {
	b.wg.Add(1)
}

// DoneGoroutine decrements the WaitGroup counter.
// Must be deferred at the start of each goroutine.
func (b *Base) DoneGoroutine() {
	b.wg.Done()
}

// WaitForShutdown blocks until all goroutines tracked by AddGoroutine have
// completed.
func (b *Base) WaitForShutdown() {
	b.wg.Wait()
}

func (b *Base) notify(from, to State) {
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
