// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown help
// pages for the failures a test server harness commonly hits.
//
// An ActionableError says what was attempted, on which resource, and what to
// try next. When it carries an Id, the CLI can render the matching catalog
// page with glamour ("testserver explain <name>").
package issue
