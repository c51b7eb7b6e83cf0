// SPDX-License-Identifier: MPL-2.0

package xprocess

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadyTimeout is returned when no output line matched the ready
	// pattern before the starter's timeout.
	ErrReadyTimeout = errors.New("process did not become ready in time")

	// ErrProcessExited is returned when the process exits before printing a
	// matching line.
	ErrProcessExited = errors.New("process exited before becoming ready")

	// ErrPatternNotFound is returned when MaxReadLines lines were read
	// without a match.
	ErrPatternNotFound = errors.New("ready pattern not found in process output")

	// ErrInvalidStarter is returned for a Starter that cannot be run.
	ErrInvalidStarter = errors.New("invalid process starter")
)

// StartError describes a failed Ensure. LogTail holds the last lines the
// process wrote, which usually explain the failure.
type StartError struct {
	Name    string
	LogPath string
	LogTail []string
	Err     error
}

// Error implements the error interface for StartError.
func (e *StartError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "start process %q: %v", e.Name, e.Err)
	if len(e.LogTail) > 0 {
		fmt.Fprintf(&b, "\n--- last output (%s) ---\n%s", e.LogPath, strings.Join(e.LogTail, "\n"))
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *StartError) Unwrap() error { return e.Err }
