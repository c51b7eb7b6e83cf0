// SPDX-License-Identifier: MPL-2.0

package serverbase

// Option configures a Base instance.
type Option func(*Base)

// WithTransitionHook registers fn to be called after every successful state
// change. The hook runs synchronously on the goroutine that made the change
// and must not call back into the Base.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(b *Base) {
		b.onTransition = fn
	}
}
