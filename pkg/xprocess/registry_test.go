// SPDX-License-Identifier: MPL-2.0

package xprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "XPROCESS_TEST_HELPER"

// TestMain turns the test binary into a fake server when helperEnv is set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode))
	}
	os.Exit(m.Run())
}

func runHelper(mode string) int {
	switch mode {
	case "ready":
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM)
		fmt.Println("booting")
		fmt.Fprintln(os.Stderr, "Server running on http://127.0.0.1:1")
		<-sigCh
		fmt.Println("terminated")
		return 0
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		fmt.Println("Server running on http://127.0.0.1:1")
		time.Sleep(time.Minute)
		return 0
	case "exit":
		fmt.Println("fatal: cannot bind")
		return 3
	case "silent":
		time.Sleep(time.Minute)
		return 0
	case "chatty":
		for i := range 100 {
			fmt.Println("noise", i)
		}
		time.Sleep(time.Minute)
		return 0
	}
	return 2
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(t.TempDir(), WithLogger(log.NewWithOptions(io.Discard, log.Options{})))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.TerminateAll(time.Second) })
	return r
}

func helperStarter(t *testing.T, mode string) Starter {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return Starter{
		Pattern: "Server running on .*",
		Args:    []string{exe, "-test.run=^$"},
		Env:     append(os.Environ(), helperEnv+"="+mode),
		Timeout: 10 * time.Second,
	}
}

func TestEnsure_ReadyAndTerminate(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	info, err := r.Ensure(context.Background(), "ready", helperStarter(t, "ready"))
	require.NoError(t, err)
	require.True(t, info.IsRunning())
	assert.Same(t, info, r.Info("ready"))
	assert.Equal(t, []string{"ready"}, r.Names())

	pid, err := os.ReadFile(info.PIDPath)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(info.PID), string(pid))

	require.NoError(t, info.Terminate(5*time.Second))
	assert.False(t, info.IsRunning())
	assert.NoFileExists(t, info.PIDPath)

	logData, err := os.ReadFile(info.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "booting")
	assert.Contains(t, string(logData), "Server running on")
	assert.Contains(t, string(logData), "terminated")

	require.NoError(t, info.Terminate(time.Second), "terminate is idempotent")
}

func TestEnsure_AlreadyRunningReturnsSameProcess(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	first, err := r.Ensure(context.Background(), "twice", helperStarter(t, "ready"))
	require.NoError(t, err)

	second, err := r.Ensure(context.Background(), "twice", helperStarter(t, "ready"))
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestEnsure_KillsStubbornProcess(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	info, err := r.Ensure(context.Background(), "stubborn", helperStarter(t, "stubborn"))
	require.NoError(t, err)

	require.NoError(t, info.Terminate(100*time.Millisecond))
	assert.False(t, info.IsRunning())
}

func TestEnsure_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    string
		timeout time.Duration
		want    error
	}{
		{"exit", 10 * time.Second, ErrProcessExited},
		{"silent", 200 * time.Millisecond, ErrReadyTimeout},
		{"chatty", 10 * time.Second, ErrPatternNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()

			r := newTestRegistry(t)
			s := helperStarter(t, tt.mode)
			s.Timeout = tt.timeout

			info, err := r.Ensure(context.Background(), tt.mode, s)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, info)
			assert.Nil(t, r.Info(tt.mode), "failed starts are not registered")

			var startErr *StartError
			require.ErrorAs(t, err, &startErr)
			assert.Equal(t, filepath.Join(r.Dir(), tt.mode, logFileName), startErr.LogPath)
		})
	}
}

func TestEnsure_ExitIncludesLogTail(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Ensure(context.Background(), "exit", helperStarter(t, "exit"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fatal: cannot bind")
}

func TestNamesSortedAndTerminateAll(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	for _, name := range []string{"zulu", "alpha", "mike"} {
		_, err := r.Ensure(context.Background(), name, helperStarter(t, "ready"))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"alpha", "mike", "zulu"}, r.Names())

	require.NoError(t, r.TerminateAll(5*time.Second))
	for _, name := range r.Names() {
		assert.False(t, r.Info(name).IsRunning(), name)
	}
}

func TestTailLines_TruncatesLongLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), logFileName)
	long := strings.Repeat("x", 2<<20)
	require.NoError(t, os.WriteFile(path, []byte("first\n"+long+"\nlast\n"), 0o600))

	tail := tailLines(path, logTailLines)
	require.Len(t, tail, 3)
	assert.Equal(t, "first", tail[0])
	assert.Equal(t, strings.Repeat("x", logTailLineBytes)+" [truncated]", tail[1])
	assert.Equal(t, "last", tail[2])

	err := &StartError{Name: "long", LogPath: path, LogTail: tail, Err: ErrProcessExited}
	assert.Less(t, len(err.Error()), 1024)
}

func TestEnsure_ContextCancelled(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.Ensure(ctx, "cancelled", helperStarter(t, "silent"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnsure_InvalidStarter(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	tests := map[string]struct {
		name string
		s    Starter
	}{
		"no args":     {"a", Starter{Pattern: "x"}},
		"no pattern":  {"b", Starter{Args: []string{"true"}}},
		"bad pattern": {"c", Starter{Args: []string{"true"}, Pattern: "("}},
		"bad name":    {"../escape", Starter{Args: []string{"true"}, Pattern: "x"}},
	}
	for desc, tt := range tests {
		_, err := r.Ensure(context.Background(), tt.name, tt.s)
		assert.ErrorIs(t, err, ErrInvalidStarter, desc)
	}
}

func TestEnsure_SpawnFailure(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.Ensure(context.Background(), "missing", Starter{
		Pattern: "x",
		Args:    []string{filepath.Join(t.TempDir(), "does-not-exist")},
	})
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "missing", startErr.Name)
}

func TestProcessInfo_NilIsNotRunning(t *testing.T) {
	t.Parallel()

	var info *ProcessInfo
	assert.False(t, info.IsRunning())
}
