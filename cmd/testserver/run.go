// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/garytyler/pytest-asgi-server/internal/config"
	"github.com/garytyler/pytest-asgi-server/internal/watch"
	"github.com/garytyler/pytest-asgi-server/pkg/entrypoint"
	"github.com/garytyler/pytest-asgi-server/pkg/testserver"
	"github.com/garytyler/pytest-asgi-server/pkg/types"
	"github.com/garytyler/pytest-asgi-server/pkg/xprocess"
)

type runFlags struct {
	host          string
	port          int
	lifespan      string
	maxRequests   int
	sslKeyfile    string
	sslCertfile   string
	raiseIfUsed   bool
	inProcess     bool
	exec          string
	reload        bool
	reloadPattern []string
	reloadCmd     string
}

func newRunCommand(root *rootFlags) *cobra.Command {
	f := &runFlags{}

	c := &cobra.Command{
		Use:   "run <module:attribute>",
		Short: "Serve a registered application until interrupted",
		Long: `Serve a registered application until interrupted.

By default the application runs in a child process started through a
bootstrap script, exactly as process fixtures do. With --in-process it runs
on a goroutine instead and stops after --max-requests requests.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, root, f, args[0])
		},
	}

	bindRunFlags(c.Flags(), f)
	c.MarkFlagsMutuallyExclusive("in-process", "reload")
	c.MarkFlagsMutuallyExclusive("in-process", "exec")
	return c
}

func bindRunFlags(fl *pflag.FlagSet, f *runFlags) {
	fl.StringVar(&f.host, "host", "", "bind host (default 127.0.0.1)")
	fl.IntVar(&f.port, "port", 0, "bind port (default: an unused port)")
	fl.StringVar(&f.lifespan, "lifespan", "", "lifespan mode: auto, on or off")
	fl.IntVar(&f.maxRequests, "max-requests", 0, "exit after this many requests")
	fl.StringVar(&f.sslKeyfile, "ssl-keyfile", "", "TLS private key file")
	fl.StringVar(&f.sslCertfile, "ssl-certfile", "", "TLS certificate file")
	fl.BoolVar(&f.raiseIfUsed, "raise-if-used-port", false, "fail instead of warning when the port is taken")
	fl.BoolVar(&f.inProcess, "in-process", false, "serve on a goroutine of this process")
	fl.StringVar(&f.exec, "exec", "", "binary the bootstrap script runs (default: this binary)")
	fl.BoolVar(&f.reload, "reload", false, "restart the server when watched files change")
	fl.StringSliceVar(&f.reloadPattern, "reload-pattern", nil, "glob of files that trigger a reload (repeatable)")
	fl.StringVar(&f.reloadCmd, "reload-cmd", "", "shell command run before each reload, e.g. a go build")
}

// options converts the flags the user set into handle options.
func (f *runFlags) options(cmd *cobra.Command) testserver.Options {
	opts := testserver.Options{}
	set := func(flag, key string, v any) {
		if cmd.Flags().Changed(flag) {
			opts[key] = v
		}
	}
	set("host", "host", f.host)
	set("port", "port", types.ListenPort(f.port))
	set("lifespan", "lifespan", f.lifespan)
	set("max-requests", "limit_max_requests", f.maxRequests)
	set("ssl-keyfile", "ssl_keyfile", f.sslKeyfile)
	set("ssl-certfile", "ssl_certfile", f.sslCertfile)
	return opts
}

func runServer(cmd *cobra.Command, root *rootFlags, f *runFlags, appStr string) error {
	ctx := cmd.Context()

	cfg, err := root.loadSettings(ctx)
	if err != nil {
		return err
	}
	logger := root.logger(cfg, "run")
	handleOpts := append(testserver.HandleOptions(cfg),
		testserver.WithLogger(logger),
		testserver.WithRaiseIfUsedPort(f.raiseIfUsed),
	)

	if f.inProcess {
		return runThread(ctx, cmd, f, appStr, handleOpts, logger)
	}
	return runProcess(ctx, cmd, f, cfg, appStr, handleOpts, logger)
}

func runThread(ctx context.Context, cmd *cobra.Command, f *runFlags, appStr string, opts []testserver.HandleOption, logger *log.Logger) error {
	ep, err := entrypoint.Parse(appStr)
	if err != nil {
		return &ExitError{Code: types.ExitUsage, Err: err}
	}
	app, err := entrypoint.Resolve(ep)
	if err != nil {
		return err
	}

	h, err := testserver.NewThreadServer(app, f.options(cmd), opts...)
	if err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		return err
	}
	announce(cmd, appStr, h)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for h.IsAlive() {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted before the request limit was reached",
				"served", h.TotalRequests(), "limit", h.Options()["limit_max_requests"])
			return nil
		case <-ticker.C:
		}
	}
	return h.Stop()
}

func runProcess(ctx context.Context, cmd *cobra.Command, f *runFlags, cfg *config.Config, appStr string, opts []testserver.HandleOption, logger *log.Logger) error {
	exe := f.exec
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		exe = self
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	registry, err := xprocess.NewRegistry(cfg.Process.RegistryDir, xprocess.WithLogger(logger.WithPrefix("xprocess")))
	if err != nil {
		return err
	}
	var conflict error
	opts = append(opts,
		testserver.WithCommand(exe, "serve"),
		testserver.WithRootDir(wd),
		testserver.WithWarningFunc(func(err error) {
			conflict = err
			logger.Warn(err.Error())
		}),
	)
	h, err := testserver.NewProcessServer(registry, appStr, f.options(cmd), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Stop(); err != nil {
			logger.Error("stop server", "err", err)
		}
	}()

	if err := h.Start(ctx); err != nil {
		return err
	}
	if conflict != nil {
		return &ExitError{Code: types.ExitFailure, Err: conflict}
	}
	announce(cmd, appStr, h)
	logger.Debug("process log", "path", h.LogPath())

	if f.reload {
		return watchAndReload(ctx, cmd, f, wd, h, logger)
	}

	select {
	case <-ctx.Done():
		return nil
	case <-registry.Info(h.Name()).Done():
		if err := registry.Info(h.Name()).ExitErr(); err != nil {
			return fmt.Errorf("server process exited: %w", err)
		}
		return nil
	}
}

func watchAndReload(ctx context.Context, cmd *cobra.Command, f *runFlags, root string, h *testserver.ProcessServer, logger *log.Logger) error {
	r := &watch.Reloader{Handle: h, Logger: logger}
	if f.reloadCmd != "" {
		build, err := watch.ShellBuild(f.reloadCmd, root, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return &ExitError{Code: types.ExitUsage, Err: err}
		}
		r.Build = build
	}

	w, err := watch.New(watch.Config{
		Root:     root,
		Patterns: f.reloadPattern,
		OnChange: r.OnChange,
		Logger:   logger.WithPrefix("watch"),
	})
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "root", w.Root())

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// announce prints the configured address. It does not use HTTPBaseURL,
// which is empty once a short-lived server has already exited.
func announce(cmd *cobra.Command, appStr string, h testserver.Handle) {
	scheme := "http"
	if h.IsTLS() {
		scheme = "https"
	}
	url := scheme + "://" + h.Port().JoinHost(h.Host())
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Serving "+appStr+" at ")+URLStyle.Render(url))
}
