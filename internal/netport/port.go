// SPDX-License-Identifier: MPL-2.0

// Package netport allocates ephemeral TCP ports and probes whether a port is
// already accepting connections.
package netport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

// DefaultProbeTimeout bounds the single connect attempt made by IsPortInUse.
const DefaultProbeTimeout = 500 * time.Millisecond

// UnusedTCPPort asks the OS for a free port on 127.0.0.1 and releases it
// immediately. Nothing stops another process from taking the port before the
// caller binds it.
func UnusedTCPPort() (types.ListenPort, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate ephemeral port: %w", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	if err := ln.Close(); err != nil {
		return 0, fmt.Errorf("release ephemeral port %d: %w", addr.Port, err)
	}
	return types.ListenPort(addr.Port), nil
}

// IsPortInUse makes one TCP connect attempt to host:port and reports whether
// it succeeded. An empty host probes localhost.
func IsPortInUse(host string, port types.ListenPort) bool {
	return IsPortInUseContext(context.Background(), host, port)
}

// IsPortInUseContext is IsPortInUse with a caller-supplied context. The
// attempt is additionally bounded by DefaultProbeTimeout.
func IsPortInUseContext(ctx context.Context, host string, port types.ListenPort) bool {
	if host == "" {
		host = "localhost"
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", port.JoinHost(host))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
