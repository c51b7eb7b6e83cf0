// SPDX-License-Identifier: MPL-2.0

//go:build unix

package xprocess

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Children lead their own process group so terminate reaches anything they
// spawn.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func signalTerminate(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func signalKill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

func signalGroup(p *os.Process, sig unix.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	if err != nil {
		return p.Signal(sig)
	}
	return nil
}
