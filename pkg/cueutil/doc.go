// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates user documents against an embedded CUE schema.
//
// Two entry points share the same compile, unify, validate sequence:
//
//	//go:embed config_schema.cue
//	var schema []byte
//
//	// CUE source
//	res, err := cueutil.ParseAndDecode[map[string]any](schema, data, "#Config",
//	    cueutil.WithFilename("testserver.cue"), cueutil.WithConcrete(false))
//
//	// data already decoded from another format (TOML, JSON)
//	err := cueutil.ValidateValue(schema, m, "#Config", cueutil.WithFilename("testserver.toml"))
//
// Errors carry the JSON-style path of the offending field.
package cueutil
