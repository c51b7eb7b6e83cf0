// SPDX-License-Identifier: MPL-2.0

package server

import (
	"time"

	"github.com/charmbracelet/log"
)

// Option configures a Server.
type Option func(*Server)

// WithSignalHandlers controls whether Run exits on SIGINT and SIGTERM.
// Servers hosted on a goroutine of another program must pass false so the
// host keeps its own signal handling.
func WithSignalHandlers(install bool) Option {
	return func(s *Server) {
		s.installSignals = install
	}
}

// WithLogger sets the logger used for the ready marker, access log and
// lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTickInterval sets how often Run checks its exit conditions.
func WithTickInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tick = d
		}
	}
}
