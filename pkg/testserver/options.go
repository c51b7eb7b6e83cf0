// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/garytyler/pytest-asgi-server/internal/netport"
	"github.com/garytyler/pytest-asgi-server/internal/server"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

const (
	// ComponentThread names ThreadServer in configuration errors.
	ComponentThread = "ThreadServer"
	// ComponentProcess names ProcessServer in configuration errors.
	ComponentProcess = "ProcessServer"
)

// Options maps server option names to values. The recognized names are the
// JSON keys of server.Config; see server.OptionKeys.
type Options map[string]any

// handleConfig is the option state shared by both handle kinds. It keeps the
// merged Options and the server.Config they decode to.
type handleConfig struct {
	component string

	mu   sync.RWMutex
	opts Options
	cfg  server.Config
}

// defaultOptions returns the base options of a new handle. The port is
// allocated here, once per handle.
func defaultOptions() (Options, error) {
	port, err := netport.UnusedTCPPort()
	if err != nil {
		return nil, err
	}
	return Options{
		"host":     server.DefaultHost,
		"port":     port,
		"lifespan": string(server.LifespanOn),
	}, nil
}

func newHandleConfig(component string, overrides Options) (*handleConfig, error) {
	base, err := defaultOptions()
	if err != nil {
		return nil, err
	}
	opts, cfg, err := merge(component, base, overrides)
	if err != nil {
		return nil, err
	}
	return &handleConfig{component: component, opts: opts, cfg: cfg}, nil
}

// merge overlays overrides onto base. Keys are checked in sorted order so the
// first unknown key reported is deterministic. A port of 0 is replaced by a
// freshly allocated one. The merged set is decoded once to catch bad values
// before any server runs.
func merge(component string, base, overrides Options) (Options, server.Config, error) {
	out := maps.Clone(base)
	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		if !server.IsOptionKey(key) {
			return nil, server.Config{}, &ConfigError{
				Component: component,
				Key:       key,
				Reason:    "not a recognized server option",
			}
		}
		v := overrides[key]
		if key == "lifespan" {
			v = server.NormalizeLifespan(v)
		}
		out[key] = v
	}

	cfg, err := server.DecodeConfig(out)
	if err != nil {
		return nil, server.Config{}, decodeError(component, err)
	}
	if cfg.Port.IsEphemeral() {
		port, err := netport.UnusedTCPPort()
		if err != nil {
			return nil, server.Config{}, err
		}
		cfg.Port = port
	}
	out["port"] = cfg.Port
	out["lifespan"] = string(cfg.Lifespan)
	return out, cfg, nil
}

func decodeError(component string, err error) error {
	var unknown *server.UnknownOptionError
	if errors.As(err, &unknown) {
		return &ConfigError{Component: component, Key: unknown.Key, Reason: "not a recognized server option", Err: err}
	}
	var invalid *server.InvalidConfigError
	if errors.As(err, &invalid) {
		return &ConfigError{Component: component, Key: invalid.Field, Reason: "invalid value", Err: err}
	}
	return &ConfigError{Component: component, Key: "options", Reason: "invalid value", Err: err}
}

func (c *handleConfig) configure(overrides Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts, cfg, err := merge(c.component, c.opts, overrides)
	if err != nil {
		return err
	}
	c.opts, c.cfg = opts, cfg
	return nil
}

// Options returns a copy of the merged options.
func (c *handleConfig) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.opts)
}

func (c *handleConfig) config() server.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Host returns the configured bind host.
func (c *handleConfig) Host() string { return c.config().Host }

// Port returns the configured port. It never changes while the handle is
// alive.
func (c *handleConfig) Port() types.ListenPort { return c.config().Port }

// IsTLS reports whether both ssl_keyfile and ssl_certfile are set.
func (c *handleConfig) IsTLS() bool { return c.config().IsTLS() }

func (c *handleConfig) baseURL(websocket, alive bool) string {
	if !alive {
		return ""
	}
	cfg := c.config()
	scheme := "http"
	if websocket {
		scheme = "ws"
	}
	if cfg.IsTLS() {
		scheme += "s"
	}
	return scheme + "://" + cfg.Port.JoinHost(cfg.Host)
}
