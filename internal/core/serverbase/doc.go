// SPDX-License-Identifier: MPL-2.0

// Package serverbase provides the lifecycle state machine shared by the
// thread-hosted and process-hosted server handles.
//
// Unlike a one-shot server, a handle may be started again after it reaches
// a terminal state, so every transition into Starting re-arms the readiness
// channel and clears the last recorded failure.
package serverbase
