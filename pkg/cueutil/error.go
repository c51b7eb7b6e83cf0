// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrInvalidCUEPath is returned by CUEPath.Validate for blank paths.
var ErrInvalidCUEPath = errors.New("invalid CUE path")

type (
	// CUEPath is a JSON-style field path such as "readiness.timeout" or
	// "headers[0]".
	CUEPath string

	// ValidationError is one schema violation in one document.
	ValidationError struct {
		FilePath string
		Path     CUEPath
		Message  string
	}
)

func (p CUEPath) String() string { return string(p) }

// Validate rejects empty and whitespace-only paths.
func (p CUEPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidCUEPath, string(p))
	}
	return nil
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.FilePath, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// FormatError converts a CUE error into one *ValidationError per reported
// problem, joined with errors.Join when there are several. Errors that did
// not come from CUE are wrapped with the file path.
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return fmt.Errorf("%s: %w", filePath, err)
	}
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	out := make([]error, 0, len(list))
	for _, e := range list {
		format, args := e.Msg()
		out = append(out, &ValidationError{
			FilePath: filePath,
			Path:     CUEPath(formatPath(cueerrors.Path(e))),
			Message:  fmt.Sprintf(format, args...),
		})
	}
	if len(out) == 1 {
		return out[0]
	}
	return errors.Join(out...)
}

// formatPath renders ["headers", "0", "name"] as "headers[0].name".
// Leading definition names such as "#Config" are dropped.
func formatPath(path []string) string {
	for len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	var b strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[" + part + "]")
		case i > 0:
			b.WriteString("." + part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize fails when data is larger than maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, len(data), maxSize)
	}
	return nil
}
