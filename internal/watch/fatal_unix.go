// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"errors"
	"syscall"
)

// isFatal reports inotify resource exhaustion. The watcher cannot recover
// from these:
//   - ENOSPC: fs.inotify.max_user_watches reached
//   - EMFILE: per-process descriptor limit
//   - ENFILE: system-wide descriptor limit
func isFatal(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
