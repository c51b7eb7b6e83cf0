// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garytyler/pytest-asgi-server/pkg/entrypoint"
)

func newAppsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the applications this binary can serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := entrypoint.Registered()
			if len(names) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("no applications are registered"))
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
