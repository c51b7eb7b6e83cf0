// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"fmt"
	"syscall"
	"testing"
)

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "too many open files", err: errnoTooManyOpenFiles, want: true},
		{name: "invalid handle", err: errnoInvalidHandle, want: true},
		{name: "wrapped out of memory", err: fmt.Errorf("watch: %w", errnoNotEnoughMemory), want: true},
		{name: "access denied", err: syscall.Errno(5), want: false},
		{name: "plain error", err: fmt.Errorf("queue overflow"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isFatal(tt.err); got != tt.want {
				t.Errorf("isFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
