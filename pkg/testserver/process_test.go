// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garytyler/pytest-asgi-server/internal/issue"
	"github.com/garytyler/pytest-asgi-server/internal/testapp"
	"github.com/garytyler/pytest-asgi-server/internal/testutil"
	"github.com/garytyler/pytest-asgi-server/pkg/xprocess"
)

func TestProcessServer_ServesAndStops(t *testing.T) {
	t.Parallel()

	h := NewProcessFactory(t, testapp.EntryPoint).New(nil)
	_, err := os.Stat(h.ScriptPath())
	require.NoError(t, err, "script exists before start")
	assert.Empty(t, h.HTTPBaseURL())

	require.NoError(t, h.Start(context.Background()))
	require.True(t, h.IsAlive())
	assert.Equal(t, "http://"+h.Port().JoinHost(h.Host()), h.HTTPBaseURL())
	assert.Equal(t, "ws://"+h.Port().JoinHost(h.Host()), h.WSBaseURL())
	assert.NotEmpty(t, h.LogPath())

	status, body := testutil.MustGet(t, h.HTTPBaseURL()+"/api")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"msg":"Hello World"}`, body)

	require.NoError(t, h.Stop())
	assert.False(t, h.IsAlive())
	assert.Empty(t, h.HTTPBaseURL())
	_, err = os.Stat(h.ScriptPath())
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, h.Stop(), "stop is idempotent")
}

func TestProcessServer_Lifespan(t *testing.T) {
	t.Parallel()

	f := NewProcessFactory(t, testapp.EntryPoint)
	for _, tt := range []struct {
		name     string
		lifespan any
		startup  int64
	}{
		{"on by default", nil, 1},
		{"off when false", false, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			overrides := Options{}
			if tt.lifespan != nil {
				overrides["lifespan"] = tt.lifespan
			}
			h := f.New(overrides)
			testutil.MustStart(t, h)

			status, body := testutil.MustGet(t, h.HTTPBaseURL()+"/lifespan")
			require.Equal(t, http.StatusOK, status)
			var counts testapp.LifespanCounts
			require.NoError(t, json.Unmarshal([]byte(body), &counts))
			assert.Equal(t, tt.startup, counts.Startup)
		})
	}
}

func TestProcessServer_AddressConflict(t *testing.T) {
	t.Parallel()

	f := NewProcessFactory(t, testapp.EntryPoint)
	first := f.New(nil)
	require.NoError(t, first.Start(context.Background()))

	t.Run("raise", func(t *testing.T) {
		h := f.New(Options{"port": first.Port()}, WithRaiseIfUsedPort(true))

		err := h.Start(context.Background())
		require.ErrorIs(t, err, ErrAddressInUse)
		var inUse *AddressInUseError
		require.ErrorAs(t, err, &inUse)
		assert.Equal(t, first.Port(), inUse.Port)
		assert.Equal(t, issue.AddressInUseId, issue.IssueOf(err))
		assert.False(t, h.IsAlive())
	})

	t.Run("warn", func(t *testing.T) {
		var warnings []error
		h := f.New(Options{"port": first.Port()}, WithWarningFunc(func(err error) {
			warnings = append(warnings, err)
		}))

		require.NoError(t, h.Start(context.Background()))
		assert.False(t, h.IsAlive())
		require.Len(t, warnings, 1)
		assert.ErrorIs(t, warnings[0], ErrAddressInUse)
		assert.Contains(t, warnings[0].Error(), "Address already in use: "+first.Port().JoinHost(first.Host()))
	})

	assert.True(t, first.IsAlive(), "the original server keeps running")
}

func TestProcessServer_StartWhileAlive(t *testing.T) {
	t.Parallel()

	h := NewProcessFactory(t, testapp.EntryPoint).New(nil)
	require.NoError(t, h.Start(context.Background()))

	assert.ErrorIs(t, h.Start(context.Background()), ErrUsage)
	assert.ErrorIs(t, h.Configure(Options{"lifespan": "off"}), ErrUsage)
	assert.True(t, h.IsAlive())
}

func TestProcessServer_StopNeverStarted(t *testing.T) {
	t.Parallel()

	h := NewProcessFactory(t, testapp.EntryPoint).New(nil)
	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
	assert.False(t, h.IsAlive())
}

func TestProcessServer_UnregisteredApp(t *testing.T) {
	t.Parallel()

	h := NewProcessFactory(t, "missing:app").New(nil)

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, xprocess.ErrProcessExited), "got %v", err)
	assert.Equal(t, issue.ProcessExitedId, issue.IssueOf(err))
	assert.Contains(t, err.Error(), "missing:app is not registered")
	assert.False(t, h.IsAlive())
}

func TestProcessServer_Environment(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	h := NewProcessFactory(t, testapp.EntryPoint).New(nil,
		WithRootDir(root),
		WithEnv(map[string]string{"APP_MODE": "test"}),
	)

	env := h.Env()
	assert.Equal(t, "1", env[BootstrapEnvVar])
	assert.Equal(t, "test", env["APP_MODE"])
	assert.Contains(t, env[SearchPathEnvVar], root)
	assert.Equal(t, root, h.RootDir())
}

func TestNewProcessServer_Errors(t *testing.T) {
	t.Parallel()

	registry, err := xprocess.NewRegistry(t.TempDir())
	require.NoError(t, err)

	_, err = NewProcessServer(nil, testapp.EntryPoint, nil)
	assert.ErrorIs(t, err, ErrUsage)

	_, err = NewProcessServer(registry, "no-colon", nil)
	assert.Error(t, err)

	_, err = NewProcessServer(registry, testapp.EntryPoint, Options{"workers": 2})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ComponentProcess, cfgErr.Component)
	assert.Equal(t, "workers", cfgErr.Key)
}
