// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package xprocess

// dirLock is a no-op outside Linux; the in-process per-name mutex still
// serializes Ensure within one registry.
type dirLock struct{}

func acquireDirLock(string) (*dirLock, error) { return &dirLock{}, nil }

func (l *dirLock) Release() {}
