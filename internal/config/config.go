// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garytyler/pytest-asgi-server/internal/issue"
	"github.com/garytyler/pytest-asgi-server/pkg/cueutil"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, so readiness.timeout is
	// read from TESTSERVER_READINESS_TIMEOUT.
	EnvPrefix = "TESTSERVER"
	// EnvConfigFile names a settings file when no explicit path is given.
	EnvConfigFile = "TESTSERVER_CONFIG"
	// FileBaseName is the settings file name searched for, without extension.
	FileBaseName = "testserver"
)

var (
	//go:embed config_schema.cue
	configSchema []byte

	// ErrUnsupportedFormat is returned for settings files that are neither
	// .cue nor .toml.
	ErrUnsupportedFormat = errors.New("unsupported settings file format")
)

// loadWithOptions builds a fresh viper instance per call so that concurrent
// loads never share state. It returns the settings and the file they were
// read from, or "" when only defaults and environment applied.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load settings canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolvePath(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := mergeFile(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(path).
				WithSuggestion("Check the file against the documented settings keys").
				WithSuggestion("Durations are strings such as \"500ms\" or \"2m\"").
				WithIssue(issue.SettingsLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("decode settings").
			WithSuggestion("Check the TESTSERVER_* environment variables").
			WithIssue(issue.SettingsLoadFailedId).
			Wrap(err).
			BuildError()
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate settings").
			WithResource(path).
			WithIssue(issue.SettingsLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("readiness.timeout", d.Readiness.Timeout)
	v.SetDefault("readiness.thread_timeout", d.Readiness.ThreadTimeout)
	v.SetDefault("readiness.poll_interval", d.Readiness.PollInterval)
	v.SetDefault("readiness.settle_delay", d.Readiness.SettleDelay)
	v.SetDefault("process.interpreter", d.Process.Interpreter)
	v.SetDefault("process.ready_pattern", d.Process.ReadyPattern)
	v.SetDefault("process.registry_dir", d.Process.RegistryDir)
	v.SetDefault("process.terminate_timeout", d.Process.TerminateTimeout)
	v.SetDefault("process.max_read_lines", d.Process.MaxReadLines)
	v.SetDefault("log.level", string(d.Log.Level))
}

// resolvePath picks the settings file: the explicit path, then
// TESTSERVER_CONFIG, then testserver.cue or testserver.toml in the search
// directory. A named file that does not exist is an error; an absent
// discovered file is not.
func resolvePath(opts LoadOptions) (string, error) {
	named := opts.ConfigFilePath
	if named == "" {
		named = os.Getenv(EnvConfigFile)
	}
	if named != "" {
		if !fileExists(named) {
			return "", issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(named).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Unset " + EnvConfigFile + " to use the defaults").
				WithIssue(issue.SettingsLoadFailedId).
				Wrap(fmt.Errorf("settings file not found: %s", named)).
				BuildError()
		}
		return named, nil
	}

	dir := opts.SearchDir
	if dir == "" {
		dir = "."
	}
	for _, ext := range []string{".cue", ".toml"} {
		candidate := filepath.Join(dir, FileBaseName+ext)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// mergeFile validates the file against the schema and merges it over the
// defaults. Environment overrides still win because viper consults them
// first on every lookup.
func mergeFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	var values map[string]any
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		res, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
			cueutil.WithFilename(path), cueutil.WithConcrete(false))
		if err != nil {
			return err
		}
		values = *res.Value
	case ".toml":
		if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
			return err
		}
		if err := toml.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := cueutil.ValidateValue(configSchema, values, "#Config",
			cueutil.WithFilename(path), cueutil.WithConcrete(false)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("merge settings: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// MarshalTOML renders cfg in the settings file format.
func MarshalTOML(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg.Map())
}
