// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the testserver command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/garytyler/pytest-asgi-server/internal/config"
	"github.com/garytyler/pytest-asgi-server/internal/issue"
	_ "github.com/garytyler/pytest-asgi-server/internal/testapp"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	verbose  bool
	settings string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "testserver",
		Short: "Run and probe disposable HTTP test servers",
		Long: TitleStyle.Render("testserver") + SubtitleStyle.Render(" - disposable HTTP servers for tests") + `

Serves a registered application on a goroutine or in a child process,
the same way test fixtures do, and offers small helpers around ports
and harness settings.

` + SubtitleStyle.Render("Examples:") + `
  testserver run testapp:app             Serve the sample app until Ctrl+C
  testserver run testapp:app --reload    Restart when Go files change
  testserver port                        Print an unused TCP port
  testserver explain address-in-use      Show help for an error`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&flags.settings, "settings", "", "settings file (default: testserver.cue or testserver.toml in the working directory)")

	root.AddCommand(
		newServeCommand(),
		newRunCommand(flags),
		newPortCommand(),
		newCheckPortCommand(),
		newAppsCommand(),
		newConfigCommand(flags),
		newExplainCommand(),
	)
	return root
}

// loadSettings reads the harness settings named by --settings.
func (f *rootFlags) loadSettings(ctx context.Context) (*config.Config, error) {
	return config.NewProvider().Load(ctx, config.LoadOptions{ConfigFilePath: f.settings})
}

// logger returns a stderr logger at the settings level, or debug with
// --verbose.
func (f *rootFlags) logger(cfg *config.Config, prefix string) *log.Logger {
	lvl, err := log.ParseLevel(cfg.Log.Level.String())
	if err != nil {
		lvl = log.InfoLevel
	}
	if f.verbose {
		lvl = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{Prefix: prefix, Level: lvl})
}

// Execute runs the command line with args and returns the process exit
// code.
func Execute(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	err := fang.Execute(ctx, root,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.Code)
	}
	return int(types.ExitFailure)
}

// Main is Execute over os.Args.
func Main() int {
	return Execute(context.Background(), os.Args[1:])
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// handleError prints actionable errors with their suggestions and stays
// quiet for bare exit codes.
func handleError(w io.Writer, _ fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	msg := err.Error()
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		msg = ae.Format(false)
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error:"), msg)
}
