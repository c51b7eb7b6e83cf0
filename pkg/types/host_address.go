// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidHostAddress is the sentinel error wrapped by InvalidHostAddressError.
var ErrInvalidHostAddress = errors.New("invalid host address")

type (
	// HostAddress is the interface or host name a managed server binds to.
	HostAddress string

	// InvalidHostAddressError is returned when a HostAddress is blank or
	// contains characters that cannot appear in a host name.
	InvalidHostAddressError struct {
		Value  HostAddress
		Reason string
	}
)

// String returns the host as a plain string.
func (h HostAddress) String() string { return string(h) }

// Validate rejects blank hosts and values carrying a port, scheme or path.
func (h HostAddress) Validate() error {
	s := string(h)
	switch {
	case strings.TrimSpace(s) == "":
		return &InvalidHostAddressError{Value: h, Reason: "must not be empty"}
	case strings.ContainsAny(s, " /\t\n"):
		return &InvalidHostAddressError{Value: h, Reason: "must not contain whitespace or slashes"}
	case net.ParseIP(s) == nil && strings.Contains(s, ":"):
		return &InvalidHostAddressError{Value: h, Reason: "must not include a port"}
	}
	return nil
}

// IsLoopback reports whether the host is "localhost" or a loopback IP literal.
func (h HostAddress) IsLoopback() bool {
	if strings.EqualFold(string(h), "localhost") {
		return true
	}
	ip := net.ParseIP(string(h))
	return ip != nil && ip.IsLoopback()
}

// Error implements the error interface for InvalidHostAddressError.
func (e *InvalidHostAddressError) Error() string {
	return fmt.Sprintf("invalid host address %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidHostAddress for errors.Is() compatibility.
func (e *InvalidHostAddressError) Unwrap() error { return ErrInvalidHostAddress }
