// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/garytyler/pytest-asgi-server/internal/core/serverbase"
	"github.com/garytyler/pytest-asgi-server/internal/server"
)

// ThreadServer runs an http.Handler on a goroutine of the calling process.
//
// The goroutine exits only after the server received limit_max_requests
// requests, so Stop blocks until the test has made that many. A server whose
// quota is never reached makes Stop hang.
type ThreadServer struct {
	*handleConfig

	app  http.Handler
	s    handleSettings
	life *serverbase.Base

	// opMu serializes Start, Stop and Configure.
	opMu sync.Mutex

	runMu sync.Mutex
	srv   *server.Server
	done  chan struct{}
	err   error
}

// NewThreadServer returns a handle for app configured with overrides on top
// of the defaults.
func NewThreadServer(app http.Handler, overrides Options, opts ...HandleOption) (*ThreadServer, error) {
	cfg, err := newHandleConfig(ComponentThread, overrides)
	if err != nil {
		return nil, err
	}
	return &ThreadServer{
		handleConfig: cfg,
		app:          app,
		s:            newHandleSettings("thread-server", opts),
		life:         serverbase.NewBase(),
	}, nil
}

// Configure merges overrides into the handle options. It fails with
// *UsageError while the handle is alive.
func (t *ThreadServer) Configure(overrides Options) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if t.IsAlive() {
		return &UsageError{Op: "configure", Reason: "options cannot change while the thread server is alive"}
	}
	return t.configure(overrides)
}

// Start launches the server goroutine and polls until it reports started.
// It is a no-op with a warning when the handle is already alive.
func (t *ThreadServer) Start(ctx context.Context) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	if t.IsAlive() {
		t.s.logger.Warn("thread server already alive; ignoring start", "url", t.HTTPBaseURL())
		return nil
	}

	cfg := t.config()
	if !cfg.LimitMaxRequests.IsDefined() {
		return &ConfigError{
			Component: ComponentThread,
			Key:       "limit_max_requests",
			Reason:    "required: a thread server stops only after serving this many requests",
		}
	}
	if cfg.Lifespan != server.LifespanOff {
		t.s.logger.Warn("lifespan hooks do not run in a thread server; forcing lifespan off", "lifespan", cfg.Lifespan)
		cfg.Lifespan = server.LifespanOff
	}

	if err := t.life.TransitionToStarting(ctx); err != nil {
		return err
	}

	srv := server.New(cfg, t.app,
		server.WithSignalHandlers(false),
		server.WithLogger(t.s.logger.WithPrefix("server")),
	)
	done := make(chan struct{})

	t.runMu.Lock()
	t.srv, t.done, t.err = srv, done, nil
	t.runMu.Unlock()

	t.life.AddGoroutine()
	go t.run(srv, done)

	return t.waitStarted(ctx, srv, done)
}

func (t *ThreadServer) run(srv *server.Server, done chan struct{}) {
	defer t.life.DoneGoroutine()
	defer close(done)

	// The goroutine outlives Start's ctx; only the request quota ends it.
	err := srv.Run(context.Background())

	t.runMu.Lock()
	t.err = err
	t.runMu.Unlock()

	if err != nil {
		t.s.logger.Error("thread server exited", "err", err)
		t.life.TransitionToFailed(err)
		return
	}
	t.life.TransitionToStopped()
}

// waitStarted is a bounded busy-wait on srv.Started.
func (t *ThreadServer) waitStarted(ctx context.Context, srv *server.Server, done <-chan struct{}) error {
	deadline := time.Now().Add(t.s.startTimeout)
	ticker := time.NewTicker(t.s.pollInterval)
	defer ticker.Stop()

	for !srv.Started() {
		select {
		case <-done:
			// A quota of zero can finish before a poll observes Started.
			// run records Stopped or Failed before closing done, so the
			// handle never stays in Starting.
			return t.Err()
		case <-ctx.Done():
			return t.abortStart(srv, done, fmt.Errorf("thread server start canceled: %w", ctx.Err()))
		case <-ticker.C:
			if time.Now().After(deadline) {
				return t.abortStart(srv, done, fmt.Errorf("%w: %s not listening after %s",
					ErrReadinessTimeout, t.Port().JoinHost(t.Host()), t.s.startTimeout))
			}
		}
	}

	t.life.TransitionToRunning()
	t.s.logger.Debug("thread server started", "url", t.HTTPBaseURL())
	return nil
}

func (t *ThreadServer) abortStart(srv *server.Server, done <-chan struct{}, err error) error {
	srv.Shutdown()
	<-done
	t.life.TransitionToFailed(err)
	return err
}

// Stop waits for the server goroutine to exit. It never interrupts the
// server: the goroutine ends once the request quota is served.
func (t *ThreadServer) Stop() error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.runMu.Lock()
	done := t.done
	t.runMu.Unlock()
	if done == nil {
		return nil
	}

	t.life.TransitionToStopping()
	<-done
	t.life.WaitForShutdown()
	return nil
}

// IsAlive reports whether the server goroutine exists and has not exited.
func (t *ThreadServer) IsAlive() bool {
	t.runMu.Lock()
	done := t.done
	t.runMu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Err returns the error of the most recent run, or nil.
func (t *ThreadServer) Err() error {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	return t.err
}

// State returns the lifecycle state of the handle.
func (t *ThreadServer) State() serverbase.State { return t.life.State() }

// TotalRequests returns the request count of the current or last run.
func (t *ThreadServer) TotalRequests() int64 {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.srv == nil {
		return 0
	}
	return t.srv.TotalRequests()
}

func (t *ThreadServer) HTTPBaseURL() string { return t.baseURL(false, t.IsAlive()) }

func (t *ThreadServer) WSBaseURL() string { return t.baseURL(true, t.IsAlive()) }
