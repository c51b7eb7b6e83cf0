// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/garytyler/pytest-asgi-server/internal/config"
)

// SettingsOptions loads the harness settings (testserver.cue or
// testserver.toml, then TESTSERVER_* variables) and converts them to handle
// options. An empty path searches the working directory.
func SettingsOptions(ctx context.Context, path string) ([]HandleOption, *config.Config, error) {
	cfg, err := config.NewProvider().Load(ctx, config.LoadOptions{ConfigFilePath: path})
	if err != nil {
		return nil, nil, err
	}
	return HandleOptions(cfg), cfg, nil
}

// HandleOptions converts loaded settings to handle options.
func HandleOptions(cfg *config.Config) []HandleOption {
	return []HandleOption{
		WithStartTimeout(cfg.Readiness.ThreadTimeout),
		WithPollInterval(cfg.Readiness.PollInterval),
		WithReadyTimeout(cfg.Readiness.Timeout),
		WithSettleDelay(cfg.Readiness.SettleDelay),
		WithTerminateTimeout(cfg.Process.TerminateTimeout),
		WithInterpreter(cfg.Process.Interpreter),
		WithReadyPattern(cfg.Process.ReadyPattern),
		WithMaxReadLines(cfg.Process.MaxReadLines),
	}
}

// settingsLogLevel maps the settings level onto charmbracelet/log.
func settingsLogLevel(cfg *config.Config) log.Level {
	lvl, err := log.ParseLevel(cfg.Log.Level.String())
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
