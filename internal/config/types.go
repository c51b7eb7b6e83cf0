// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is one of the charmbracelet/log level names.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// Config is the complete harness settings tree.
	Config struct {
		Readiness ReadinessConfig `mapstructure:"readiness"`
		Process   ProcessConfig   `mapstructure:"process"`
		Log       LogConfig       `mapstructure:"log"`
	}

	// ReadinessConfig controls how handles wait for a server to come up.
	ReadinessConfig struct {
		// Timeout bounds the process handle's wait for the ready marker.
		Timeout time.Duration `mapstructure:"timeout"`
		// ThreadTimeout bounds the thread handle's wait for Started.
		ThreadTimeout time.Duration `mapstructure:"thread_timeout"`
		PollInterval  time.Duration `mapstructure:"poll_interval"`
		// SettleDelay is slept after readiness is observed.
		SettleDelay time.Duration `mapstructure:"settle_delay"`
	}

	// ProcessConfig controls how process handles spawn their server.
	ProcessConfig struct {
		Interpreter      string        `mapstructure:"interpreter"`
		ReadyPattern     string        `mapstructure:"ready_pattern"`
		RegistryDir      string        `mapstructure:"registry_dir"`
		TerminateTimeout time.Duration `mapstructure:"terminate_timeout"`
		MaxReadLines     int           `mapstructure:"max_read_lines"`
	}

	// LogConfig holds the harness log level.
	LogConfig struct {
		Level LogLevel `mapstructure:"level"`
	}

	// InvalidConfigError collects every field problem found by Validate.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Readiness: ReadinessConfig{
			Timeout:       60 * time.Second,
			ThreadTimeout: 10 * time.Second,
			PollInterval:  10 * time.Millisecond,
			SettleDelay:   100 * time.Millisecond,
		},
		Process: ProcessConfig{
			Interpreter:      "/bin/sh",
			ReadyPattern:     "Server running on .*",
			RegistryDir:      filepath.Join(os.TempDir(), "testserver-xprocess"),
			TerminateTimeout: 5 * time.Second,
			MaxReadLines:     50,
		},
		Log: LogConfig{Level: LogLevelInfo},
	}
}

func (l LogLevel) String() string { return string(l) }

// Validate returns an error if l is not a known level.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Validate checks the constraints the schema cannot see after environment
// overrides are applied.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	positive("readiness.timeout", c.Readiness.Timeout)
	positive("readiness.thread_timeout", c.Readiness.ThreadTimeout)
	positive("readiness.poll_interval", c.Readiness.PollInterval)
	if c.Readiness.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("readiness.settle_delay must not be negative, got %s", c.Readiness.SettleDelay))
	}

	if strings.TrimSpace(c.Process.Interpreter) == "" {
		errs = append(errs, errors.New("process.interpreter must not be empty"))
	}
	if _, err := regexp.Compile(c.Process.ReadyPattern); err != nil || c.Process.ReadyPattern == "" {
		errs = append(errs, fmt.Errorf("process.ready_pattern %q is not a usable regular expression", c.Process.ReadyPattern))
	}
	if strings.TrimSpace(c.Process.RegistryDir) == "" {
		errs = append(errs, errors.New("process.registry_dir must not be empty"))
	}
	positive("process.terminate_timeout", c.Process.TerminateTimeout)
	if c.Process.MaxReadLines <= 0 {
		errs = append(errs, fmt.Errorf("process.max_read_lines must be positive, got %d", c.Process.MaxReadLines))
	}

	if err := c.Log.Level.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid settings: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes ErrInvalidConfig and every field error to errors.Is.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Map renders the settings as nested maps with durations as strings, the
// same shape a settings file uses.
func (c *Config) Map() map[string]any {
	return map[string]any{
		"readiness": map[string]any{
			"timeout":        c.Readiness.Timeout.String(),
			"thread_timeout": c.Readiness.ThreadTimeout.String(),
			"poll_interval":  c.Readiness.PollInterval.String(),
			"settle_delay":   c.Readiness.SettleDelay.String(),
		},
		"process": map[string]any{
			"interpreter":       c.Process.Interpreter,
			"ready_pattern":     c.Process.ReadyPattern,
			"registry_dir":      c.Process.RegistryDir,
			"terminate_timeout": c.Process.TerminateTimeout.String(),
			"max_read_lines":    c.Process.MaxReadLines,
		},
		"log": map[string]any{
			"level": c.Log.Level.String(),
		},
	}
}
