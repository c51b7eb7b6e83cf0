// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/garytyler/pytest-asgi-server/pkg/xprocess"
)

// TB is the part of testing.TB the factories use.
type TB interface {
	Helper()
	Cleanup(func())
	TempDir() string
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// handleList tracks the handles a factory created.
type handleList[H Handle] struct {
	mu      sync.Mutex
	handles []H
}

func (l *handleList[H]) add(h H) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles = append(l.handles, h)
}

// stopAll stops every tracked handle, newest first. Errors are logged so one
// failing handle does not keep the others running.
func (l *handleList[H]) stopAll(tb TB) {
	l.mu.Lock()
	handles := l.handles
	l.handles = nil
	l.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		if err := handles[i].Stop(); err != nil {
			tb.Logf("stop server handle: %v", err)
		}
	}
}

// factoryOptions resolves the harness settings and the factory logger.
// Explicit options win over settings.
func factoryOptions(tb TB, prefix string, opts []HandleOption) ([]HandleOption, *log.Logger) {
	tb.Helper()

	fromSettings, cfg, err := SettingsOptions(context.Background(), "")
	if err != nil {
		tb.Fatalf("load testserver settings: %v", err)
		return nil, nil
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: prefix, Level: settingsLogLevel(cfg)})
	all := append([]HandleOption{WithLogger(logger)}, fromSettings...)
	return append(all, opts...), logger
}

// ThreadFactory creates ThreadServers for one test and stops them when the
// test ends.
type ThreadFactory struct {
	tb   TB
	app  http.Handler
	opts []HandleOption
	list handleList[*ThreadServer]
}

// NewThreadFactory returns a factory for app. Its handles are stopped in
// tb.Cleanup.
func NewThreadFactory(tb TB, app http.Handler, opts ...HandleOption) *ThreadFactory {
	tb.Helper()

	all, _ := factoryOptions(tb, "thread-server", opts)
	f := &ThreadFactory{tb: tb, app: app, opts: all}
	tb.Cleanup(f.StopAll)
	return f
}

// New creates an unstarted handle. Construction errors fail the test.
func (f *ThreadFactory) New(overrides Options, opts ...HandleOption) *ThreadServer {
	f.tb.Helper()

	h, err := NewThreadServer(f.app, overrides, append(f.opts[:len(f.opts):len(f.opts)], opts...)...)
	if err != nil {
		f.tb.Fatalf("new thread server: %v", err)
		return nil
	}
	f.list.add(h)
	return h
}

// StopAll stops every handle the factory created.
func (f *ThreadFactory) StopAll() { f.list.stopAll(f.tb) }

// ProcessFactory creates ProcessServers for one test. It owns a registry
// rooted in a per-test temp dir.
type ProcessFactory struct {
	tb       TB
	appStr   string
	opts     []HandleOption
	registry *xprocess.Registry
	list     handleList[*ProcessServer]
}

// NewProcessFactory returns a factory for the application registered as
// appStr. Its handles are stopped, and the registry emptied, in tb.Cleanup.
func NewProcessFactory(tb TB, appStr string, opts ...HandleOption) *ProcessFactory {
	tb.Helper()

	all, logger := factoryOptions(tb, "process-server", opts)
	registry, err := xprocess.NewRegistry(tb.TempDir(), xprocess.WithLogger(logger.WithPrefix("xprocess")))
	if err != nil {
		tb.Fatalf("create process registry: %v", err)
		return nil
	}
	f := &ProcessFactory{tb: tb, appStr: appStr, opts: all, registry: registry}
	tb.Cleanup(f.StopAll)
	return f
}

// Registry returns the registry the factory's handles use.
func (f *ProcessFactory) Registry() *xprocess.Registry { return f.registry }

// New creates an unstarted handle. Construction errors fail the test.
func (f *ProcessFactory) New(overrides Options, opts ...HandleOption) *ProcessServer {
	f.tb.Helper()

	h, err := NewProcessServer(f.registry, f.appStr, overrides, append(f.opts[:len(f.opts):len(f.opts)], opts...)...)
	if err != nil {
		f.tb.Fatalf("new process server: %v", err)
		return nil
	}
	f.list.add(h)
	return h
}

// StopAll stops every handle and then anything left in the registry.
func (f *ProcessFactory) StopAll() {
	f.list.stopAll(f.tb)
	if err := f.registry.TerminateAll(xprocess.DefaultTerminateTimeout); err != nil {
		f.tb.Logf("terminate remaining processes: %v", err)
	}
}
