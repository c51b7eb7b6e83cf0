// SPDX-License-Identifier: MPL-2.0

// Package server is the embedded HTTP server that test handles run, either
// on a goroutine of the test process or inside a bootstrapped subprocess.
//
// A Server runs one application to completion: optional lifespan startup,
// listen, serve, then exit on request quota, Shutdown, context cancellation
// or (when installed) an OS signal, followed by graceful shutdown and the
// lifespan shutdown hook.
package server
