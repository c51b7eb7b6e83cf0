// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Restartable is the part of a server handle a Reloader drives.
type Restartable interface {
	Start(ctx context.Context) error
	Stop() error
}

// Reloader restarts a handle for every change batch. Build is called
// before the restart when set; a failed build keeps the old server.
type Reloader struct {
	Handle Restartable
	Build  func(ctx context.Context) error
	Logger *log.Logger

	mu       sync.Mutex
	restarts int
}

// OnChange is a ChangeFunc.
func (r *Reloader) OnChange(ctx context.Context, changed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Logger != nil {
		r.Logger.Info("reloading", "changed", changed)
	}
	if r.Build != nil {
		if err := r.Build(ctx); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}

	stopErr := r.Handle.Stop()
	if err := r.Handle.Start(ctx); err != nil {
		return errors.Join(stopErr, fmt.Errorf("restart: %w", err))
	}
	r.restarts++
	return stopErr
}

// Restarts returns how many restarts succeeded.
func (r *Reloader) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}
