// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ParseResult holds a decoded document and the unified value it came from.
type ParseResult[T any] struct {
	Value   *T
	Unified cue.Value
}

// ParseAndDecode compiles schema, unifies the definition at def with the CUE
// document in data, validates the result and decodes it into T.
func ParseAndDecode[T any](schema, data []byte, def string, opts ...Option) (*ParseResult[T], error) {
	o := applyOptions(opts)
	name := o.displayName()

	if err := CheckFileSize(data, o.maxFileSize, name); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	root, err := lookupDefinition(ctx, schema, def)
	if err != nil {
		return nil, err
	}

	doc := ctx.CompileBytes(data, cue.Filename(name))
	if doc.Err() != nil {
		return nil, FormatError(doc.Err(), name)
	}

	unified, err := validate(root.Unify(doc), o)
	if err != nil {
		return nil, err
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, name)
	}
	return &ParseResult[T]{Value: &out, Unified: unified}, nil
}

// ValidateValue checks a Go value, typically a map decoded from TOML or
// JSON, against the definition at def.
func ValidateValue(schema []byte, value any, def string, opts ...Option) error {
	o := applyOptions(opts)

	ctx := cuecontext.New()
	root, err := lookupDefinition(ctx, schema, def)
	if err != nil {
		return err
	}

	doc := ctx.Encode(value)
	if doc.Err() != nil {
		return FormatError(doc.Err(), o.displayName())
	}

	_, err = validate(root.Unify(doc), o)
	return err
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func lookupDefinition(ctx *cue.Context, schema []byte, def string) (cue.Value, error) {
	compiled := ctx.CompileBytes(schema)
	if compiled.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: compile schema: %w", compiled.Err())
	}
	root := compiled.LookupPath(cue.ParsePath(def))
	if root.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: schema definition %s: %w", def, root.Err())
	}
	return root, nil
}

func validate(v cue.Value, o options) (cue.Value, error) {
	if err := v.Validate(cue.Concrete(o.concrete)); err != nil {
		return cue.Value{}, FormatError(err, o.displayName())
	}
	return v, nil
}
