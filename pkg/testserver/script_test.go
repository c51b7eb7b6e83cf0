// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderScript(t *testing.T) {
	t.Parallel()

	script, err := renderScript("/opt/my tools/server", []string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\nexec '/opt/my tools/server' serve \"$@\"\n", script)
}

func TestRenderScript_QuotesAwkwardPaths(t *testing.T) {
	t.Parallel()

	_, err := renderScript("/tmp/it's $HOME", []string{"serve", "--flag=a b"})
	require.NoError(t, err)
}

func TestRenderScript_RunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bootstrap scripts are POSIX shell")
	}
	t.Parallel()

	echo, err := exec.LookPath("echo")
	require.NoError(t, err)

	script, err := renderScript(echo, []string{"serve"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bootstrap.sh")
	require.NoError(t, writeScript(path, script))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	out, err := exec.Command("/bin/sh", path, `{"appstr":"a:b"}`).Output()
	require.NoError(t, err)
	assert.Equal(t, "serve {\"appstr\":\"a:b\"}\n", string(out))
}

func TestWriteScript_ResetsMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bootstrap.sh")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))
	require.NoError(t, writeScript(path, "#!/bin/sh\n"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
