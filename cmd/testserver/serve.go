// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/garytyler/pytest-asgi-server/pkg/testserver"
)

// newServeCommand is the target of bootstrap scripts. Process handles
// started by this binary exec "testserver serve <json>".
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "serve <json>",
		Short:  "Serve a registered application from bootstrap parameters",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return testserver.RunBootstrap(cmd.Context(), args[0])
		},
	}
}
