// SPDX-License-Identifier: MPL-2.0

// Package xprocess starts named background processes and blocks until their
// output shows they are ready.
//
// A Registry owns a directory with one subdirectory per process name. Each
// holds the merged stdout/stderr log (xprocess.log) and, while the process
// runs, its pid file (xprocess.PID). Ensure is idempotent for a running name,
// so a test suite can ask for the same server many times and pay the start-up
// cost once.
package xprocess
