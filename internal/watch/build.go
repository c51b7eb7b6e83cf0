// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ShellBuild returns a Reloader.Build func that runs script with the
// embedded POSIX shell in dir. The script is parsed once, here.
func ShellBuild(script, dir string, stdout, stderr io.Writer) (func(context.Context) error, error) {
	prog, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(script), "reload-cmd")
	if err != nil {
		return nil, fmt.Errorf("parse reload command: %w", err)
	}

	return func(ctx context.Context) error {
		runner, err := interp.New(
			interp.Dir(dir),
			interp.Env(expand.ListEnviron(os.Environ()...)),
			interp.StdIO(nil, stdout, stderr),
		)
		if err != nil {
			return fmt.Errorf("create shell: %w", err)
		}
		if err := runner.Run(ctx, prog); err != nil {
			var status interp.ExitStatus
			if errors.As(err, &status) {
				return fmt.Errorf("reload command exited with status %d", uint8(status))
			}
			return err
		}
		return nil
	}, nil
}
