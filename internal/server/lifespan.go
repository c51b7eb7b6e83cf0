// SPDX-License-Identifier: MPL-2.0

package server

import "context"

// Lifespan is implemented by applications that need startup and shutdown
// hooks. Hooks only run in a server whose lifespan mode is not "off".
type Lifespan interface {
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
