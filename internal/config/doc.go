// SPDX-License-Identifier: MPL-2.0

// Package config loads the harness settings: readiness timeouts, the process
// registry location and the log level.
//
// Settings come from built-in defaults, then an optional testserver.cue or
// testserver.toml file, then TESTSERVER_* environment variables. CUE files
// and decoded TOML are both checked against the embedded config_schema.cue.
package config
