// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garytyler/pytest-asgi-server/internal/netport"
	"github.com/garytyler/pytest-asgi-server/internal/server"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

func newPortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "port",
		Short: "Print an unused TCP port",
		Long: `Print a TCP port that was free a moment ago.

The port is released before the command exits, so another process can
take it before you bind it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := netport.UnusedTCPPort()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), port)
			return nil
		},
	}
}

func newCheckPortCommand() *cobra.Command {
	var host string

	c := &cobra.Command{
		Use:   "check-port <port>",
		Short: "Exit 0 if something accepts connections on the port, 1 if not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return &ExitError{Code: types.ExitUsage, Err: fmt.Errorf("port %q is not a number", args[0])}
			}
			port := types.ListenPort(n)
			if err := port.Validate(); err != nil {
				return &ExitError{Code: types.ExitUsage, Err: err}
			}
			if err := types.HostAddress(host).Validate(); err != nil {
				return &ExitError{Code: types.ExitUsage, Err: err}
			}

			addr := port.JoinHost(host)
			if netport.IsPortInUseContext(cmd.Context(), host, port) {
				fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render(addr+" is in use"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(addr+" is free"))
			return &ExitError{Code: types.ExitFailure}
		},
	}
	c.Flags().StringVar(&host, "host", server.DefaultHost, "host to probe")
	return c
}
