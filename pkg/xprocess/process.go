// SPDX-License-Identifier: MPL-2.0

package xprocess

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultTerminateTimeout is how long Terminate waits after SIGTERM before
// it kills the process.
const DefaultTerminateTimeout = 5 * time.Second

// ProcessInfo is the registry's record of one started process.
type ProcessInfo struct {
	Name    string
	PID     int
	LogPath string
	PIDPath string

	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func newProcessInfo(name string, cmd *exec.Cmd, logPath, pidPath string) *ProcessInfo {
	return &ProcessInfo{
		Name:    name,
		PID:     cmd.Process.Pid,
		LogPath: logPath,
		PIDPath: pidPath,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
}

// IsRunning reports whether the process has not exited yet.
func (p *ProcessInfo) IsRunning() bool {
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed once the process has exited and its output
// has been flushed to the log.
func (p *ProcessInfo) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the error from waiting on the process, or nil while it
// runs or after a clean exit.
func (p *ProcessInfo) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Terminate sends SIGTERM and waits up to timeout for the process to exit
// before killing it. It is a no-op for a process that already exited.
func (p *ProcessInfo) Terminate(timeout time.Duration) error {
	if !p.IsRunning() {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTerminateTimeout
	}

	if err := signalTerminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminate %s (pid %d): %w", p.Name, p.PID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	return p.kill()
}

func (p *ProcessInfo) kill() error {
	if err := signalKill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s (pid %d): %w", p.Name, p.PID, err)
	}
	<-p.done
	return nil
}

func (p *ProcessInfo) finish(err error) {
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	_ = os.Remove(p.PIDPath)
	close(p.done)
}
