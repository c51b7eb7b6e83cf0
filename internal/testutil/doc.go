// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers for tests that start servers, fetch
// from them and clean up after them. Must* helpers fail the test on error;
// Defer* helpers return cleanup funcs that only log.
package testutil
