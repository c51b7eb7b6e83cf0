// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garytyler/pytest-asgi-server/internal/server"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

func TestHandleConfig_Defaults(t *testing.T) {
	t.Parallel()

	c, err := newHandleConfig(ComponentThread, nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", c.Host())
	assert.NotZero(t, c.Port())
	assert.Equal(t, "on", c.Options()["lifespan"])
	assert.False(t, c.IsTLS())
}

func TestHandleConfig_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := newHandleConfig(ComponentProcess, Options{"workers": 4, "reload": true, "host": "localhost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ComponentProcess, cfgErr.Component)
	assert.Equal(t, "reload", cfgErr.Key, "keys are checked in sorted order")
	assert.Contains(t, err.Error(), "ProcessServer")
	assert.Contains(t, err.Error(), `"reload"`)
}

func TestHandleConfig_LifespanFalseRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := newHandleConfig(ComponentThread, nil)
	require.NoError(t, err)
	host, port := c.Host(), c.Port()

	require.NoError(t, c.configure(Options{"lifespan": false}))

	assert.Equal(t, "off", c.Options()["lifespan"])
	assert.Equal(t, server.LifespanOff, c.config().Lifespan)
	assert.Equal(t, host, c.Host())
	assert.Equal(t, port, c.Port())
}

func TestHandleConfig_EphemeralPortIsAllocated(t *testing.T) {
	t.Parallel()

	c, err := newHandleConfig(ComponentThread, Options{"port": 0})
	require.NoError(t, err)
	assert.NotZero(t, c.Port())
	assert.Equal(t, c.Port(), c.Options()["port"])
}

func TestHandleConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overrides Options
		wantKey   string
	}{
		{"port out of range", Options{"port": 70000}, "port"},
		{"blank host", Options{"host": "  "}, "host"},
		{"bad lifespan", Options{"lifespan": "sometimes"}, "lifespan"},
		{"key without cert", Options{"ssl_keyfile": "key.pem"}, "ssl_certfile"},
		{"negative quota", Options{"limit_max_requests": -1}, "limit_max_requests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newHandleConfig(ComponentThread, tt.overrides)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
			assert.True(t, errors.Is(err, ErrConfig))
		})
	}
}

func TestHandleConfig_ConfigureKeepsStateOnError(t *testing.T) {
	t.Parallel()

	c, err := newHandleConfig(ComponentThread, Options{"limit_max_requests": 3})
	require.NoError(t, err)
	before := c.Options()

	require.Error(t, c.configure(Options{"bogus": 1}))
	assert.Equal(t, before, c.Options())
}

func TestHandleConfig_BaseURLs(t *testing.T) {
	t.Parallel()

	c, err := newHandleConfig(ComponentProcess, Options{"port": 8123})
	require.NoError(t, err)

	assert.Empty(t, c.baseURL(false, false))
	assert.Empty(t, c.baseURL(true, false))
	assert.Equal(t, "http://127.0.0.1:8123", c.baseURL(false, true))
	assert.Equal(t, "ws://127.0.0.1:8123", c.baseURL(true, true))

	require.NoError(t, c.configure(Options{"ssl_keyfile": "k.pem", "ssl_certfile": "c.pem", "host": "::1"}))
	assert.True(t, c.IsTLS())
	assert.Equal(t, "https://[::1]:8123", c.baseURL(false, true))
	assert.Equal(t, "wss://[::1]:8123", c.baseURL(true, true))
	assert.Equal(t, types.ListenPort(8123), c.Port())
}
