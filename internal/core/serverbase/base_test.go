// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	t.Run("Created to Starting to Running to Stopped", func(t *testing.T) {
		t.Parallel()

		b := NewBase()

		if b.State() != StateCreated {
			t.Errorf("expected StateCreated, got %s", b.State())
		}

		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting failed: %v", err)
		}
		if b.State() != StateStarting {
			t.Errorf("expected StateStarting, got %s", b.State())
		}

		if !b.TransitionToRunning() {
			t.Fatal("TransitionToRunning should return true from Starting")
		}
		if !b.IsRunning() {
			t.Error("IsRunning should return true")
		}

		if !b.TransitionToStopping() {
			t.Error("TransitionToStopping should return true")
		}
		if b.State() != StateStopping {
			t.Errorf("expected StateStopping, got %s", b.State())
		}

		b.TransitionToStopped()
		if b.State() != StateStopped {
			t.Errorf("expected StateStopped, got %s", b.State())
		}
	})

	t.Run("Starting to Failed", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting failed: %v", err)
		}

		testErr := context.DeadlineExceeded
		b.TransitionToFailed(testErr)

		if b.State() != StateFailed {
			t.Errorf("expected StateFailed, got %s", b.State())
		}
		if !errors.Is(b.LastError(), testErr) {
			t.Errorf("expected %v, got %v", testErr, b.LastError())
		}
	})

	t.Run("Running requires Starting", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if b.TransitionToRunning() {
			t.Error("TransitionToRunning from Created should return false")
		}
		if b.State() != StateCreated {
			t.Errorf("expected StateCreated, got %s", b.State())
		}
	})
}

func TestRestart(t *testing.T) {
	t.Parallel()

	t.Run("restart after Stopped re-arms readiness", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		ctx := context.Background()

		if err := b.TransitionToStarting(ctx); err != nil {
			t.Fatalf("first start: %v", err)
		}
		b.TransitionToRunning()
		first := b.StartedChannel()
		b.TransitionToStopping()
		b.TransitionToStopped()

		if err := b.TransitionToStarting(ctx); err != nil {
			t.Fatalf("second start: %v", err)
		}
		second := b.StartedChannel()

		select {
		case <-first:
		default:
			t.Error("first cycle's channel should stay closed")
		}
		select {
		case <-second:
			t.Error("second cycle's channel should not be closed before Running")
		default:
		}

		if b.Cycles() != 2 {
			t.Errorf("Cycles() = %d, want 2", b.Cycles())
		}
	})

	t.Run("restart after Failed clears the last error", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		ctx := context.Background()

		if err := b.TransitionToStarting(ctx); err != nil {
			t.Fatalf("first start: %v", err)
		}
		b.TransitionToFailed(errors.New("boom"))

		if err := b.TransitionToStarting(ctx); err != nil {
			t.Fatalf("restart from Failed: %v", err)
		}
		if b.LastError() != nil {
			t.Errorf("LastError() = %v, want nil", b.LastError())
		}
	})
}

func TestRaceConditions(t *testing.T) {
	t.Parallel()

	t.Run("concurrent state reads during transitions", func(t *testing.T) {
		t.Parallel()

		b := NewBase()

		var wg sync.WaitGroup
		for range 10 {
			wg.Go(func() {
				for range 100 {
					_ = b.State()
					_ = b.IsRunning()
					_ = b.StartedChannel()
				}
			})
		}

		for range 3 {
			_ = b.TransitionToStarting(context.Background())
			b.TransitionToRunning()
			b.TransitionToStopping()
			b.TransitionToStopped()
		}

		wg.Wait()
	})

	t.Run("concurrent Stop calls", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting failed: %v", err)
		}
		b.TransitionToRunning()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for range 10 {
			wg.Go(func() {
				if b.TransitionToStopping() {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			})
		}
		wg.Wait()

		if winners != 1 {
			t.Errorf("expected exactly one Stop to win, got %d", winners)
		}
	})
}

func TestIdempotency(t *testing.T) {
	t.Parallel()

	t.Run("double Start returns TransitionError", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		ctx := context.Background()
		if err := b.TransitionToStarting(ctx); err != nil {
			t.Fatalf("first TransitionToStarting failed: %v", err)
		}

		err := b.TransitionToStarting(ctx)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		var te *TransitionError
		if !errors.As(err, &te) || te.From != StateStarting {
			t.Errorf("expected TransitionError from starting, got %#v", err)
		}
	})

	t.Run("double Stop is safe", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting failed: %v", err)
		}
		b.TransitionToRunning()

		if !b.TransitionToStopping() {
			t.Error("first TransitionToStopping should return true")
		}
		b.TransitionToStopped()

		if b.TransitionToStopping() {
			t.Error("second TransitionToStopping should return false")
		}
		if b.State() != StateStopped {
			t.Errorf("expected StateStopped, got %s", b.State())
		}
	})

	t.Run("Stop without Start keeps the handle startable", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if b.TransitionToStopping() {
			t.Error("TransitionToStopping from Created should return false")
		}
		if b.State() != StateCreated {
			t.Errorf("expected StateCreated, got %s", b.State())
		}
	})
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	t.Run("Start with already cancelled context fails immediately", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := b.TransitionToStarting(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if b.State() != StateFailed {
			t.Errorf("expected StateFailed, got %s", b.State())
		}
	})

	t.Run("WaitForReady respects context cancellation", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting failed: %v", err)
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		if err := b.WaitForReady(waitCtx); err == nil {
			t.Error("expected timeout error")
		}
	})

	t.Run("WaitForReady succeeds when server becomes ready", func(t *testing.T) {
		t.Parallel()

		b := NewBase()
		if err := b.TransitionToStarting(context.Background()); err != nil {
			t.Fatalf("TransitionToStarting failed: %v", err)
		}

		go b.TransitionToRunning()

		waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := b.WaitForReady(waitCtx); err != nil {
			t.Errorf("WaitForReady failed: %v", err)
		}
	})
}

func TestTransitionHook(t *testing.T) {
	t.Parallel()

	var got []string
	b := NewBase(WithTransitionHook(func(from, to State) {
		got = append(got, from.String()+">"+to.String())
	}))

	_ = b.TransitionToStarting(context.Background())
	b.TransitionToRunning()
	b.TransitionToStopping()
	b.TransitionToStopped()

	want := []string{"created>starting", "starting>running", "running>stopping", "stopping>stopped"}
	if len(got) != len(want) {
		t.Fatalf("hook calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hook[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		expected string
	}{
		{StateCreated, "created"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()

			if got := tt.state.String(); got != tt.expected {
				t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
			}
		})
	}
}

func TestStateCanStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		canStart bool
	}{
		{StateCreated, true},
		{StateStarting, false},
		{StateRunning, false},
		{StateStopping, false},
		{StateStopped, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			t.Parallel()

			if got := tt.state.CanStart(); got != tt.canStart {
				t.Errorf("State(%d).CanStart() = %v, want %v", tt.state, got, tt.canStart)
			}
		})
	}
}

func TestGoroutineTracking(t *testing.T) {
	t.Parallel()

	b := NewBase()

	var (
		counter int
		mu      sync.Mutex
	)
	for range 5 {
		b.AddGoroutine()
		go func() {
			defer b.DoneGoroutine()
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}

	b.WaitForShutdown()

	mu.Lock()
	defer mu.Unlock()
	if counter != 5 {
		t.Errorf("expected counter=5, got %d", counter)
	}
}

func TestStateValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state   State
		wantErr bool
	}{
		{StateCreated, false},
		{StateFailed, false},
		{State(99), true},
		{State(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			t.Parallel()

			err := tt.state.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("State(%d).Validate() = %v, want ErrInvalidState", tt.state, err)
				}
			} else if err != nil {
				t.Errorf("State(%d).Validate() unexpected error: %v", tt.state, err)
			}
		})
	}
}
