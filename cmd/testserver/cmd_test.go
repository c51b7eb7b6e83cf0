// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garytyler/pytest-asgi-server/internal/issue"
	"github.com/garytyler/pytest-asgi-server/pkg/testserver"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

// execute runs the command tree without fang and captures its output.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	root.SilenceErrors = true
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunFlags_OnlyChangedFlagsBecomeOptions(t *testing.T) {
	t.Parallel()

	c := &cobra.Command{Use: "run"}
	f := &runFlags{}
	bindRunFlags(c.Flags(), f)
	require.NoError(t, c.ParseFlags([]string{"--port", "8123", "--lifespan", "off", "--max-requests", "3"}))

	assert.Equal(t, testserver.Options{
		"port":               types.ListenPort(8123),
		"lifespan":           "off",
		"limit_max_requests": 3,
	}, f.options(c))
}

func TestPortCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "port")
	require.NoError(t, err)
	port, err := strconv.Atoi(strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.NoError(t, types.ListenPort(port).Validate())
}

func TestCheckPortCommand_Usage(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "check-port", "99999")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, types.ExitUsage, exitErr.Code)
	assert.ErrorIs(t, err, types.ErrInvalidListenPort)
}

func TestAppsCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "apps")
	require.NoError(t, err)
	assert.Contains(t, strings.Split(strings.TrimSpace(stdout), "\n"), "testapp:app")
}

func TestExplainCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "explain")
	require.NoError(t, err)
	for _, i := range issue.Values() {
		assert.Contains(t, stdout, i.Name())
	}

	_, _, err = execute(t, "explain", "bogus")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, types.ExitUsage, exitErr.Code)
}

func TestHandleError(t *testing.T) {
	t.Parallel()

	t.Run("bare exit code is silent", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		handleError(&buf, fang.Styles{}, &ExitError{Code: types.ExitFailure})
		assert.Empty(t, buf.String())
	})

	t.Run("actionable error shows the explain hint", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		err := issue.NewErrorContext().
			WithOperation("start process server").
			WithIssue(issue.ProcessExitedId).
			Wrap(errors.New("boom")).
			BuildError()
		handleError(&buf, fang.Styles{}, err)
		assert.Contains(t, buf.String(), "failed to start process server: boom")
		assert.Contains(t, buf.String(), "testserver explain process-exited")
	})
}
