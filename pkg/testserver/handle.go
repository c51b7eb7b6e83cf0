// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"maps"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/garytyler/pytest-asgi-server/internal/config"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

type (
	// Handle is one managed server instance and its lifecycle.
	//
	// Stop is idempotent and safe on a handle that never started. Configure
	// is only accepted while the handle is not alive.
	Handle interface {
		Start(ctx context.Context) error
		Stop() error
		IsAlive() bool
		Configure(overrides Options) error
		Options() Options
		Host() string
		Port() types.ListenPort
		IsTLS() bool
		// HTTPBaseURL and WSBaseURL return "" unless the handle is alive.
		HTTPBaseURL() string
		WSBaseURL() string
	}

	// HandleOption configures a handle at construction.
	HandleOption func(*handleSettings)

	handleSettings struct {
		logger *log.Logger

		startTimeout     time.Duration
		pollInterval     time.Duration
		readyTimeout     time.Duration
		settleDelay      time.Duration
		terminateTimeout time.Duration

		interpreter  string
		executable   string
		commandArgs  []string
		readyPattern string
		maxReadLines int
		name         string
		rootDir      string
		env          map[string]string

		conflictCheck bool
		raiseIfUsed   bool
		warn          WarningFunc
	}
)

var (
	_ Handle = (*ThreadServer)(nil)
	_ Handle = (*ProcessServer)(nil)
)

func newHandleSettings(prefix string, opts []HandleOption) handleSettings {
	d := config.DefaultConfig()
	s := handleSettings{
		startTimeout:     d.Readiness.ThreadTimeout,
		pollInterval:     d.Readiness.PollInterval,
		readyTimeout:     d.Readiness.Timeout,
		settleDelay:      d.Readiness.SettleDelay,
		terminateTimeout: d.Process.TerminateTimeout,
		interpreter:      d.Process.Interpreter,
		commandArgs:      []string{"serve"},
		readyPattern:     d.Process.ReadyPattern,
		maxReadLines:     d.Process.MaxReadLines,
		conflictCheck:    true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: prefix})
	}
	if s.warn == nil {
		logger := s.logger
		s.warn = func(err error) { logger.Warn(err.Error()) }
	}
	return s
}

// WithLogger sets the handle logger.
func WithLogger(l *log.Logger) HandleOption {
	return func(s *handleSettings) { s.logger = l }
}

// WithStartTimeout bounds how long ThreadServer.Start polls for readiness.
func WithStartTimeout(d time.Duration) HandleOption {
	return func(s *handleSettings) { s.startTimeout = d }
}

// WithPollInterval sets the ThreadServer readiness poll interval.
func WithPollInterval(d time.Duration) HandleOption {
	return func(s *handleSettings) { s.pollInterval = d }
}

// WithReadyTimeout bounds how long ProcessServer.Start waits for the ready
// marker.
func WithReadyTimeout(d time.Duration) HandleOption {
	return func(s *handleSettings) { s.readyTimeout = d }
}

// WithSettleDelay sets the one-off sleep ProcessServer.Start performs when
// the process is not yet reported running after the marker matched.
func WithSettleDelay(d time.Duration) HandleOption {
	return func(s *handleSettings) { s.settleDelay = d }
}

// WithTerminateTimeout sets how long Stop waits after SIGTERM before killing.
func WithTerminateTimeout(d time.Duration) HandleOption {
	return func(s *handleSettings) { s.terminateTimeout = d }
}

// WithInterpreter sets the shell that runs the bootstrap script.
func WithInterpreter(path string) HandleOption {
	return func(s *handleSettings) { s.interpreter = path }
}

// WithCommand sets the program the bootstrap script execs and the arguments
// placed before the JSON blob. The default is the running executable with
// the single argument "serve".
func WithCommand(executable string, args ...string) HandleOption {
	return func(s *handleSettings) {
		s.executable = executable
		s.commandArgs = args
	}
}

// WithReadyPattern sets the regular expression that marks the process ready.
func WithReadyPattern(pattern string) HandleOption {
	return func(s *handleSettings) { s.readyPattern = pattern }
}

// WithMaxReadLines bounds how many output lines are searched for the ready
// pattern.
func WithMaxReadLines(n int) HandleOption {
	return func(s *handleSettings) { s.maxReadLines = n }
}

// WithName sets the registry name of a ProcessServer.
func WithName(name string) HandleOption {
	return func(s *handleSettings) { s.name = name }
}

// WithRootDir sets the directory the bootstrapped process changes into.
func WithRootDir(dir string) HandleOption {
	return func(s *handleSettings) { s.rootDir = dir }
}

// WithEnv adds variables to the bootstrapped process environment. A
// TESTSERVER_PATH entry is merged into the search path rather than replacing
// it.
func WithEnv(env map[string]string) HandleOption {
	return func(s *handleSettings) {
		if s.env == nil {
			s.env = map[string]string{}
		}
		maps.Copy(s.env, env)
	}
}

// WithAddressConflictCheck enables or disables the in-use probe at Start.
func WithAddressConflictCheck(enabled bool) HandleOption {
	return func(s *handleSettings) { s.conflictCheck = enabled }
}

// WithRaiseIfUsedPort makes Start fail with *AddressInUseError instead of
// warning when the address is taken.
func WithRaiseIfUsedPort(raise bool) HandleOption {
	return func(s *handleSettings) { s.raiseIfUsed = raise }
}

// WithWarningFunc receives *AddressInUseWarning values. The default logs them.
func WithWarningFunc(fn WarningFunc) HandleOption {
	return func(s *handleSettings) { s.warn = fn }
}
