// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garytyler/pytest-asgi-server/internal/config"
)

func newConfigCommand(flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect harness settings",
		Long: `Inspect harness settings.

Settings are read from --settings, then $` + config.EnvConfigFile + `, then
testserver.cue or testserver.toml in the working directory. Variables
named ` + config.EnvPrefix + `_<SECTION>_<KEY> override single values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadSettings(cmd.Context())
			if err != nil {
				return err
			}
			out, err := config.MarshalTOML(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := config.NewProvider()
			if _, err := p.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: flags.settings}); err != nil {
				return err
			}
			if p.Source() == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), SubtitleStyle.Render("no settings file; using defaults"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.Source())
			return nil
		},
	})

	return cfgCmd
}
