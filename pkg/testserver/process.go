// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garytyler/pytest-asgi-server/internal/issue"
	"github.com/garytyler/pytest-asgi-server/pkg/entrypoint"
	"github.com/garytyler/pytest-asgi-server/pkg/xprocess"
)

// processSeq keeps default registry names unique when two handles share a
// port, as in the address-conflict case.
var processSeq atomic.Int64

// ProcessServer runs a registered application in a separate OS process.
//
// Every handle owns its own bootstrap script. The script is removed by Stop,
// so Stop must run on every exit path.
type ProcessServer struct {
	*handleConfig

	registry   *xprocess.Registry
	appStr     string
	rootDir    string
	env        map[string]string
	scriptPath string
	name       string
	s          handleSettings

	mu sync.Mutex
}

// NewProcessServer returns a handle that serves the application registered
// as appStr ("module:attribute") through registry.
func NewProcessServer(registry *xprocess.Registry, appStr string, overrides Options, opts ...HandleOption) (*ProcessServer, error) {
	if registry == nil {
		return nil, &UsageError{Op: "new process server", Reason: "registry is nil"}
	}
	if _, err := entrypoint.Parse(appStr); err != nil {
		return nil, err
	}
	cfg, err := newHandleConfig(ComponentProcess, overrides)
	if err != nil {
		return nil, err
	}

	s := newHandleSettings("process-server", opts)
	if s.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		s.executable = exe
	}

	rootDir := s.rootDir
	if rootDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve root dir: %w", err)
		}
		if rootDir, err = findRootDir(wd); err != nil {
			return nil, err
		}
	} else if rootDir, err = filepath.Abs(rootDir); err != nil {
		return nil, fmt.Errorf("resolve root dir: %w", err)
	}

	name := s.name
	if name == "" {
		name = fmt.Sprintf("test-server-process-%s-%d", cfg.Port(), processSeq.Add(1))
	}

	script, err := createScriptFile()
	if err != nil {
		return nil, err
	}

	p := &ProcessServer{
		handleConfig: cfg,
		registry:     registry,
		appStr:       appStr,
		rootDir:      rootDir,
		env:          processEnv(os.Environ(), s.env, rootDir),
		scriptPath:   script,
		name:         name,
		s:            s,
	}
	if err := p.writeScript(); err != nil {
		_ = os.Remove(script)
		return nil, err
	}
	return p, nil
}

// Configure merges overrides into the handle options. It fails with
// *UsageError while the process is alive.
func (p *ProcessServer) Configure(overrides Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.IsAlive() {
		return &UsageError{Op: "configure", Reason: "options cannot change while the process server is alive"}
	}
	return p.configure(overrides)
}

// Start spawns the server process and blocks until its output shows the
// ready marker. When the address is already taken, Start follows the
// address-conflict policy and leaves the handle not alive.
func (p *ProcessServer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.IsAlive() {
		return &UsageError{Op: "start", Reason: fmt.Sprintf("process server %q is already alive; call Stop first", p.name)}
	}

	policy := addressPolicy{enabled: p.s.conflictCheck, raise: p.s.raiseIfUsed, warn: p.s.warn}
	proceed, err := policy.check(ctx, p.Host(), p.Port())
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("start process server").
			WithResource(p.Port().JoinHost(p.Host())).
			WithIssue(issue.AddressInUseId).
			Wrap(err).
			BuildError()
	}
	if !proceed {
		return nil
	}

	if err := p.writeScript(); err != nil {
		return err
	}
	blob, err := BootstrapParams{AppStr: p.appStr, RootDir: p.rootDir, Kwargs: p.Options()}.Encode()
	if err != nil {
		return err
	}

	starter := xprocess.Starter{
		Pattern:      p.s.readyPattern,
		Args:         []string{p.s.interpreter, p.scriptPath, blob},
		Env:          environ(p.env),
		Dir:          p.rootDir,
		Timeout:      p.s.readyTimeout,
		MaxReadLines: p.s.maxReadLines,
	}
	if _, err := p.registry.Ensure(ctx, p.name, starter); err != nil {
		return p.startFailure(err)
	}

	if !p.IsAlive() {
		time.Sleep(p.s.settleDelay)
	}
	p.s.logger.Debug("process server started", "name", p.name, "url", p.HTTPBaseURL())
	return nil
}

func (p *ProcessServer) startFailure(err error) error {
	ec := issue.NewErrorContext().
		WithOperation("start process server").
		WithResource(p.appStr)

	switch {
	case errors.Is(err, xprocess.ErrReadyTimeout):
		ec.WithIssue(issue.ReadinessTimeoutId).
			WithSuggestion(fmt.Sprintf("Raise the readiness timeout (now %s)", p.s.readyTimeout))
		err = fmt.Errorf("%w: %w", ErrReadinessTimeout, err)
	case errors.Is(err, xprocess.ErrProcessExited), errors.Is(err, xprocess.ErrPatternNotFound):
		ec.WithIssue(issue.ProcessExitedId)
	}

	var se *xprocess.StartError
	if errors.As(err, &se) && se.LogPath != "" {
		ec.WithSuggestion("Read the full log at " + se.LogPath)
	}
	return ec.Wrap(err).BuildError()
}

// Stop terminates the process if it is running and removes the bootstrap
// script. It is safe to call any number of times.
func (p *ProcessServer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if info := p.registry.Info(p.name); info.IsRunning() {
		if err := info.Terminate(p.s.terminateTimeout); err != nil {
			errs = append(errs, fmt.Errorf("terminate %q: %w", p.name, err))
		}
	}
	if err := os.Remove(p.scriptPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove bootstrap script: %w", err))
	}
	return errors.Join(errs...)
}

// IsAlive reports whether the registry knows the process as running.
func (p *ProcessServer) IsAlive() bool {
	return p.registry.Info(p.name).IsRunning()
}

func (p *ProcessServer) writeScript() error {
	script, err := renderScript(p.s.executable, p.s.commandArgs)
	if err != nil {
		return err
	}
	return writeScript(p.scriptPath, script)
}

// ScriptPath returns the bootstrap script location.
func (p *ProcessServer) ScriptPath() string { return p.scriptPath }

// Name returns the registry name of the process.
func (p *ProcessServer) Name() string { return p.name }

// RootDir returns the directory the process runs in.
func (p *ProcessServer) RootDir() string { return p.rootDir }

// Env returns a copy of the process environment.
func (p *ProcessServer) Env() map[string]string { return maps.Clone(p.env) }

// LogPath returns the registry log file of the process, or "" before the
// first start.
func (p *ProcessServer) LogPath() string {
	if info := p.registry.Info(p.name); info != nil {
		return info.LogPath
	}
	return ""
}

func (p *ProcessServer) HTTPBaseURL() string { return p.baseURL(false, p.IsAlive()) }

func (p *ProcessServer) WSBaseURL() string { return p.baseURL(true, p.IsAlive()) }
