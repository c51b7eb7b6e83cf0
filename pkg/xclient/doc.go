// SPDX-License-Identifier: MPL-2.0

// Package xclient is a small HTTP and WebSocket client bound to a
// testserver handle. Open starts the handle if needed and binds the base
// URLs; requests take paths relative to them.
package xclient
