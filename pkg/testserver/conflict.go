// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"

	"github.com/garytyler/pytest-asgi-server/internal/netport"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

// addressPolicy decides what Start does when its address is already taken.
type addressPolicy struct {
	enabled bool
	raise   bool
	warn    WarningFunc
}

// check probes host:port once. It reports whether Start may proceed. A taken
// address either fails with *AddressInUseError or, when not raising, is
// reported to the warning func and stops the start without an error. The
// probe races with whoever binds next; it is a diagnostic, not a lock.
func (p addressPolicy) check(ctx context.Context, host string, port types.ListenPort) (bool, error) {
	if !p.enabled || !netport.IsPortInUseContext(ctx, host, port) {
		return true, nil
	}

	msg := addressInUseMessage(host, port)
	if p.raise {
		return false, &AddressInUseError{Host: host, Port: port, Message: msg}
	}
	if p.warn != nil {
		p.warn(&AddressInUseWarning{Host: host, Port: port, Message: msg})
	}
	return false, nil
}
