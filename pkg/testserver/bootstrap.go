// SPDX-License-Identifier: MPL-2.0

package testserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/garytyler/pytest-asgi-server/internal/server"
	"github.com/garytyler/pytest-asgi-server/pkg/entrypoint"
)

// BootstrapEnvVar is set to "1" in the environment of bootstrapped
// processes.
const BootstrapEnvVar = "TESTSERVER_BOOTSTRAP"

// ErrBadBootstrap is returned for a bootstrap blob or command line that
// cannot be used.
var ErrBadBootstrap = errors.New("invalid bootstrap parameters")

// BootstrapParams is the single JSON argument a bootstrapped process gets.
type BootstrapParams struct {
	AppStr  string  `json:"appstr"`
	RootDir string  `json:"rootdir"`
	Kwargs  Options `json:"kwargs"`
}

// Encode returns the JSON blob passed on the bootstrap command line.
func (p BootstrapParams) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode bootstrap parameters: %w", err)
	}
	return string(data), nil
}

// DecodeBootstrapParams parses a blob produced by Encode.
func DecodeBootstrapParams(blob string) (BootstrapParams, error) {
	var p BootstrapParams
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return p, fmt.Errorf("%w: %w", ErrBadBootstrap, err)
	}
	if p.AppStr == "" {
		return p, fmt.Errorf("%w: appstr is empty", ErrBadBootstrap)
	}
	if p.RootDir == "" {
		return p, fmt.Errorf("%w: rootdir is empty", ErrBadBootstrap)
	}
	return p, nil
}

// RunBootstrap decodes blob, resolves the registered application, changes
// into the root directory and serves until the server exits. Signal
// handlers are installed, so SIGTERM stops it gracefully.
func RunBootstrap(ctx context.Context, blob string) error {
	p, err := DecodeBootstrapParams(blob)
	if err != nil {
		return err
	}
	ep, err := entrypoint.Parse(p.AppStr)
	if err != nil {
		return err
	}
	app, err := entrypoint.Resolve(ep)
	if err != nil {
		return err
	}

	cfg, err := server.DecodeConfig(p.Kwargs)
	if err != nil {
		return err
	}
	if err := os.Chdir(p.RootDir); err != nil {
		return fmt.Errorf("enter root dir: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "server"})
	return server.New(cfg, app, server.WithSignalHandlers(true), server.WithLogger(logger)).Run(ctx)
}

// MainIfBootstrap serves the bootstrap request and exits when the process was
// started by a ProcessServer. Otherwise it returns at once. Call it first in
// main or TestMain of binaries that serve themselves.
func MainIfBootstrap() {
	if os.Getenv(BootstrapEnvVar) != "1" {
		return
	}
	if len(os.Args) != 3 || os.Args[1] != "serve" {
		fmt.Fprintf(os.Stderr, "%v: expected \"serve <json>\", got %q\n", ErrBadBootstrap, os.Args[1:])
		os.Exit(2)
	}
	if err := RunBootstrap(context.Background(), os.Args[2]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
