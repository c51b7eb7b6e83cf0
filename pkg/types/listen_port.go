// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidListenPort is the sentinel error wrapped by InvalidListenPortError.
var ErrInvalidListenPort = errors.New("invalid listen port")

type (
	// ListenPort is the TCP port a managed server listens on.
	// The zero value asks the OS for an ephemeral port.
	ListenPort int

	// InvalidListenPortError is returned when a ListenPort value is
	// outside 0-65535.
	InvalidListenPortError struct {
		Value ListenPort
	}
)

// String returns the decimal string representation of the ListenPort.
func (p ListenPort) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error if the ListenPort is outside 0-65535.
func (p ListenPort) Validate() error {
	if p < 0 || p > 65535 {
		return &InvalidListenPortError{Value: p}
	}
	return nil
}

// IsEphemeral reports whether the port is left for the OS to choose.
func (p ListenPort) IsEphemeral() bool { return p == 0 }

// JoinHost returns "host:port", bracketing IPv6 literals.
func (p ListenPort) JoinHost(host string) string {
	return net.JoinHostPort(host, p.String())
}

// Error implements the error interface for InvalidListenPortError.
func (e *InvalidListenPortError) Error() string {
	return fmt.Sprintf("invalid listen port %d: must be 0 (ephemeral) or 1-65535", e.Value)
}

// Unwrap returns ErrInvalidListenPort for errors.Is() compatibility.
func (e *InvalidListenPortError) Unwrap() error { return ErrInvalidListenPort }
