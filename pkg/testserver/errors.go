// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"errors"
	"fmt"

	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

var (
	// ErrConfig is wrapped by every *ConfigError.
	ErrConfig = errors.New("server configuration error")
	// ErrUsage is wrapped by every *UsageError.
	ErrUsage = errors.New("server handle misuse")
	// ErrReadinessTimeout is returned when a server did not report itself
	// ready within the start timeout.
	ErrReadinessTimeout = errors.New("server did not become ready in time")
	// ErrAddressInUse is wrapped by *AddressInUseError and
	// *AddressInUseWarning.
	ErrAddressInUse = errors.New("address already in use")
)

type (
	// ConfigError reports an option that a handle cannot accept: an
	// unrecognized key, an unusable value or a missing required option.
	ConfigError struct {
		Component string
		Key       string
		Reason    string
		Err       error
	}

	// UsageError reports a call made in the wrong handle state.
	UsageError struct {
		Op     string
		Reason string
	}

	// AddressInUseError is returned by Start when the configured address is
	// already accepting connections and the handle was told to raise.
	AddressInUseError struct {
		Host    string
		Port    types.ListenPort
		Message string
	}

	// AddressInUseWarning is delivered to the WarningFunc when the
	// configured address is taken and the handle was told not to raise.
	AddressInUseWarning struct {
		Host    string
		Port    types.ListenPort
		Message string
	}

	// WarningFunc receives recoverable problems found during Start.
	WarningFunc func(error)
)

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%s: option %q: %s", e.Component, e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *UsageError) Unwrap() error { return ErrUsage }

func (e *AddressInUseError) Error() string { return e.Message }

func (e *AddressInUseError) Unwrap() error { return ErrAddressInUse }

func (w *AddressInUseWarning) Error() string { return w.Message }

func (w *AddressInUseWarning) Unwrap() error { return ErrAddressInUse }

func addressInUseMessage(host string, port types.ListenPort) string {
	return "Address already in use: " + port.JoinHost(host)
}
