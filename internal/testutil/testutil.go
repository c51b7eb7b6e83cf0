// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// HTTPTimeout bounds MustGet requests.
const HTTPTimeout = 10 * time.Second

type (
	// Stopper is anything with a Stop method, typically a server handle.
	Stopper interface {
		Stop() error
	}

	// Starter is a handle that can be started and stopped.
	Starter interface {
		Stopper
		Start(ctx context.Context) error
	}
)

// MustStart starts h and registers a cleanup that stops it.
func MustStart(t testing.TB, h Starter) {
	t.Helper()
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(DeferStop(t, h))
}

// MustStop stops s. Stop errors are logged, not fatal.
func MustStop(t testing.TB, s Stopper) {
	t.Helper()
	if err := s.Stop(); err != nil {
		t.Logf("warning: stop returned error: %v", err)
	}
}

// DeferStop returns a func that stops s and logs any error.
func DeferStop(t testing.TB, s Stopper) func() {
	t.Helper()
	return func() {
		t.Helper()
		if err := s.Stop(); err != nil {
			t.Logf("warning: stop returned error: %v", err)
		}
	}
}

// MustClose closes c.
func MustClose(t testing.TB, c io.Closer) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
}

// DeferClose returns a func that closes c and logs any error.
func DeferClose(t testing.TB, c io.Closer) func() {
	t.Helper()
	return func() {
		t.Helper()
		if err := c.Close(); err != nil {
			t.Logf("warning: close returned error: %v", err)
		}
	}
}

// MustGet issues one GET without keep-alive, so no idle client connection
// outlives the call, and returns the status and body.
func MustGet(t testing.TB, url string) (int, string) {
	t.Helper()

	client := &http.Client{
		Timeout:   HTTPTimeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body of %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

// MustWriteFile writes content to path with mode 0644.
func MustWriteFile(t testing.TB, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
