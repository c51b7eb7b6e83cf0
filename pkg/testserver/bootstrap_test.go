// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garytyler/pytest-asgi-server/internal/server"
	"github.com/garytyler/pytest-asgi-server/pkg/entrypoint"
)

func TestBootstrapParams_WireFormat(t *testing.T) {
	t.Parallel()

	blob, err := BootstrapParams{
		AppStr:  "testapp:app",
		RootDir: "/srv/project",
		Kwargs:  Options{"port": 8000, "lifespan": "off"},
	}.Encode()
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"appstr": "testapp:app",
		"rootdir": "/srv/project",
		"kwargs": {"port": 8000, "lifespan": "off"}
	}`, blob)

	p, err := DecodeBootstrapParams(blob)
	require.NoError(t, err)
	cfg, err := server.DecodeConfig(p.Kwargs)
	require.NoError(t, err)
	assert.EqualValues(t, 8000, cfg.Port)
	assert.Equal(t, server.LifespanOff, cfg.Lifespan)
}

func TestDecodeBootstrapParams_Errors(t *testing.T) {
	t.Parallel()

	for name, blob := range map[string]string{
		"not json":      `{appstr`,
		"no appstr":     `{"rootdir": "/x"}`,
		"no rootdir":    `{"appstr": "a:b"}`,
		"wrong kwargs":  `{"appstr": "a:b", "rootdir": "/x", "kwargs": [1]}`,
		"empty payload": ``,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeBootstrapParams(blob)
			assert.ErrorIs(t, err, ErrBadBootstrap)
		})
	}
}

func TestRunBootstrap_UnregisteredApp(t *testing.T) {
	t.Parallel()

	blob := mustBlob(t, BootstrapParams{AppStr: "nowhere:app", RootDir: t.TempDir()})
	err := RunBootstrap(context.Background(), blob)
	assert.ErrorIs(t, err, entrypoint.ErrNotRegistered)
}

func TestRunBootstrap_BadKwargs(t *testing.T) {
	t.Parallel()

	blob := mustBlob(t, BootstrapParams{
		AppStr:  "testapp:app",
		RootDir: t.TempDir(),
		Kwargs:  Options{"workers": 2},
	})
	err := RunBootstrap(context.Background(), blob)
	assert.ErrorIs(t, err, server.ErrUnknownOption)
}

func mustBlob(t *testing.T, p BootstrapParams) string {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return string(data)
}
