// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SearchPathEnvVar lists directories, joined with os.PathListSeparator,
// that applications may resolve project resources against.
const SearchPathEnvVar = "TESTSERVER_PATH"

// processEnv computes the environment of a bootstrapped process: base, then
// extra, then the bootstrap marker, with the search path set to the
// de-duplicated union of base's value, extra's value and rootDir.
func processEnv(base []string, extra map[string]string, rootDir string) map[string]string {
	env := make(map[string]string, len(base)+len(extra)+2)
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	inherited := env[SearchPathEnvVar]
	maps.Copy(env, extra)

	env[SearchPathEnvVar] = joinSearchPath(inherited, extra[SearchPathEnvVar], rootDir)
	env[BootstrapEnvVar] = "1"
	return env
}

func joinSearchPath(parts ...string) string {
	var out []string
	for _, part := range parts {
		for _, dir := range filepath.SplitList(part) {
			if dir != "" && !slices.Contains(out, dir) {
				out = append(out, dir)
			}
		}
	}
	return strings.Join(out, string(os.PathListSeparator))
}

// environ renders env as sorted KEY=VALUE pairs.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

// findRootDir returns the nearest ancestor of dir holding a go.mod, or dir
// itself when there is none.
func findRootDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve root dir: %w", err)
	}
	for cur := abs; ; {
		if _, err := os.Stat(filepath.Join(cur, "go.mod")); err == nil {
			return cur, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("resolve root dir: %w", err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		cur = parent
	}
}
