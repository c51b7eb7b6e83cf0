// SPDX-License-Identifier: MPL-2.0

package xprocess

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// DefaultTimeout bounds how long Ensure waits for the ready pattern.
	DefaultTimeout = 120 * time.Second
	// DefaultMaxReadLines is how many unmatched lines Ensure tolerates.
	DefaultMaxReadLines = 50
)

// Starter describes how to launch a process and how to tell it is ready.
type Starter struct {
	// Pattern is a regular expression searched for in every output line.
	Pattern string
	// Args is the full argument vector; Args[0] is the program.
	Args []string
	// Env is the complete environment of the child. Nil inherits the
	// registry process's environment.
	Env []string
	// Dir is the working directory; empty uses the current directory.
	Dir string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxReadLines defaults to DefaultMaxReadLines; a negative value reads
	// until the timeout.
	MaxReadLines int
}

func (s Starter) compile() (*regexp.Regexp, error) {
	if len(s.Args) == 0 || s.Args[0] == "" {
		return nil, fmt.Errorf("%w: empty argument vector", ErrInvalidStarter)
	}
	if s.Pattern == "" {
		return nil, fmt.Errorf("%w: empty ready pattern", ErrInvalidStarter)
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: ready pattern: %w", ErrInvalidStarter, err)
	}
	return re, nil
}

func (s Starter) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s Starter) maxReadLines() int {
	if s.MaxReadLines == 0 {
		return DefaultMaxReadLines
	}
	return s.MaxReadLines
}
