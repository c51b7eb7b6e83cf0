// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package xprocess

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

// Without process groups or SIGTERM, terminate falls back to a hard kill.
func signalTerminate(p *os.Process) error { return p.Kill() }

func signalKill(p *os.Process) error { return p.Kill() }
