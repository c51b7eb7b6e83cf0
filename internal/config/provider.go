// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit settings loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific file when set.
	ConfigFilePath string
	// SearchDir is where testserver.cue and testserver.toml are looked for.
	// Defaults to the working directory.
	SearchDir string
}

// Provider loads settings from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
	// Source reports the settings file the last successful Load read, or ""
	// when none was found.
	Source() string
}

type fileProvider struct {
	source string
}

// NewProvider creates a settings provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads settings from the requested source.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, path, err := loadWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	p.source = path
	return cfg, nil
}

func (p *fileProvider) Source() string { return p.source }
