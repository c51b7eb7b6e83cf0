// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// renderScript builds the POSIX bootstrap script that replaces the shell
// with executable, passing args and then the script's own arguments.
func renderScript(executable string, args []string) (string, error) {
	words := make([]string, 0, len(args)+1)
	for _, w := range append([]string{executable}, args...) {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote bootstrap argument %q: %w", w, err)
		}
		words = append(words, q)
	}

	script := "#!/bin/sh\nexec " + strings.Join(words, " ") + " \"$@\"\n"
	if _, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(script), "bootstrap.sh"); err != nil {
		return "", fmt.Errorf("generated bootstrap script does not parse: %w", err)
	}
	return script, nil
}

// createScriptFile reserves a per-handle temp file for the bootstrap script.
func createScriptFile() (string, error) {
	f, err := os.CreateTemp("", "testserver-bootstrap-*.sh")
	if err != nil {
		return "", fmt.Errorf("create bootstrap script: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("create bootstrap script: %w", err)
	}
	return path, nil
}

func writeScript(path, script string) error {
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		return fmt.Errorf("write bootstrap script: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o700); err != nil {
		return fmt.Errorf("write bootstrap script: %w", err)
	}
	return nil
}
