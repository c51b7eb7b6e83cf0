// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize bounds the documents ParseAndDecode accepts.
const DefaultMaxFileSize int64 = 1 << 20

type (
	// Option configures ParseAndDecode and ValidateValue.
	Option func(*options)

	options struct {
		filename    string
		concrete    bool
		maxFileSize int64
	}
)

func defaultOptions() options {
	return options{
		concrete:    true,
		maxFileSize: DefaultMaxFileSize,
	}
}

// WithFilename names the document in error messages.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// WithConcrete controls whether every field must resolve to a concrete
// value. Partial documents such as settings overlays pass false.
func WithConcrete(concrete bool) Option {
	return func(o *options) { o.concrete = concrete }
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(o *options) { o.maxFileSize = n }
}

func (o options) displayName() string {
	if o.filename == "" {
		return "<input>"
	}
	return o.filename
}
