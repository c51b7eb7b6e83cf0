// SPDX-License-Identifier: MPL-2.0

package main

import (
	"os"

	cmd "github.com/garytyler/pytest-asgi-server/cmd/testserver"
	"github.com/garytyler/pytest-asgi-server/pkg/testserver"
)

func main() {
	testserver.MainIfBootstrap()
	os.Exit(cmd.Main())
}
