// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garytyler/pytest-asgi-server/internal/issue"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

func newExplainCommand() *cobra.Command {
	var style string

	c := &cobra.Command{
		Use:   "explain [issue]",
		Short: "Show help for an error reported by the harness",
		Long: `Show help for an error reported by the harness.

Without an argument, lists the known issues.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, i := range issue.Values() {
					fmt.Fprintln(cmd.OutOrStdout(), i.Name())
				}
				return nil
			}

			i, ok := issue.Lookup(args[0])
			if !ok {
				return &ExitError{
					Code: types.ExitUsage,
					Err:  fmt.Errorf("unknown issue %q; run 'testserver explain' for the list", args[0]),
				}
			}
			out, err := i.Render(style)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	c.Flags().StringVar(&style, "style", "auto", "glamour style: auto, dark, light or notty")
	return c
}
