// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

type Id int

const (
	AddressInUseId Id = iota + 1
	InvalidOptionId
	MissingRequestLimitId
	ReadinessTimeoutId
	ProcessExitedId
	EntryPointNotFoundId
	SettingsLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	name     string      // kebab-case name accepted by `testserver explain`
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) Name() string {
	return i.name
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.extLinks) > 0 {
		var b strings.Builder
		b.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			fmt.Fprintf(&b, "- <%s>\n", link)
		}
		md += b.String()
	}
	return render(md, stylePath)
}

// String returns the issue's name, or "issue-<n>" for unknown ids.
func (id Id) String() string {
	if i := issues[id]; i != nil {
		return i.name
	}
	return fmt.Sprintf("issue-%d", int(id))
}

var (
	render = glamour.Render

	addressInUseIssue = &Issue{
		id:   AddressInUseId,
		name: "address-in-use",
		mdMsg: `
# Address already in use

Something is already accepting connections on the host and port the server
was configured for, so it was not started.

## Things you can try
- Let the harness pick a port: leave 'port' out of the options.
- Stop the handle that owns the port before starting another one on it.
- Find the listener:
~~~
$ testserver check-port 8000 --host 127.0.0.1
~~~
- Pass 'WithRaiseIfUsedPort(true)' to turn the warning into an error.`,
	}

	invalidOptionIssue = &Issue{
		id:   InvalidOptionId,
		name: "invalid-option",
		mdMsg: `
# Invalid server option

A handle only accepts the options of the embedded server, and each value
must be usable.

## Recognized options
'host', 'port', 'lifespan', 'ssl_keyfile', 'ssl_certfile',
'limit_max_requests', 'limit_concurrency', 'timeout_keep_alive',
'timeout_graceful_shutdown', 'log_level', 'access_log', 'server_header',
'date_header', 'headers'

## Things you can try
- Check the option name for typos.
- Set 'ssl_keyfile' and 'ssl_certfile' together.`,
	}

	missingRequestLimitIssue = &Issue{
		id:   MissingRequestLimitId,
		name: "missing-request-limit",
		mdMsg: `
# Thread-hosted server needs a request limit

A server running on a goroutine of the test process cannot receive signals,
so it stops only after serving 'limit_max_requests' requests.

## Things you can try
- Pass the number of requests the test will make:
~~~go
srv.Configure(testserver.Options{"limit_max_requests": 1})
~~~
- Use a process-hosted server when the request count is not known.`,
	}

	readinessTimeoutIssue = &Issue{
		id:   ReadinessTimeoutId,
		name: "readiness-timeout",
		mdMsg: `
# Server did not become ready

The server never reported that it was accepting connections.

## Things you can try
- Read the process log printed with the error.
- Raise the readiness timeout:
~~~
$ TESTSERVER_READINESS_TIMEOUT=2m go test ./...
~~~
- Make sure the served binary handles the 'serve' bootstrap command.`,
	}

	processExitedIssue = &Issue{
		id:   ProcessExitedId,
		name: "process-exited",
		mdMsg: `
# Server process exited during start-up

The bootstrapped process ended before it printed the ready marker.

## Things you can try
- Read the process log printed with the error.
- Call 'testserver.MainIfBootstrap()' at the top of 'TestMain' when the test
  binary serves itself.
- Check that the application is registered under the requested entry point.`,
	}

	entryPointNotFoundIssue = &Issue{
		id:   EntryPointNotFoundId,
		name: "entry-point-not-found",
		mdMsg: `
# Application not registered

Applications are found by "<module>:<attribute>" names that they register
from an 'init' function.

## Things you can try
- List what the binary knows about:
~~~
$ testserver apps
~~~
- Import the application package (a blank import is enough) in the binary
  that serves it.`,
	}

	settingsLoadFailedIssue = &Issue{
		id:   SettingsLoadFailedId,
		name: "settings-load-failed",
		mdMsg: `
# Harness settings could not be loaded

The settings file or a 'TESTSERVER_*' environment variable holds a value
that does not fit the settings schema.

## Things you can try
- Show the effective settings:
~~~
$ testserver config show
~~~
- Durations are strings such as "500ms" or "2m".`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	issues = map[Id]*Issue{
		addressInUseIssue.Id():        addressInUseIssue,
		invalidOptionIssue.Id():       invalidOptionIssue,
		missingRequestLimitIssue.Id(): missingRequestLimitIssue,
		readinessTimeoutIssue.Id():    readinessTimeoutIssue,
		processExitedIssue.Id():       processExitedIssue,
		entryPointNotFoundIssue.Id():  entryPointNotFoundIssue,
		settingsLoadFailedIssue.Id():  settingsLoadFailedIssue,
	}
)

// Values returns every catalog entry ordered by id.
func Values() []*Issue {
	out := maps.Values(issues)
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

// Lookup finds an issue by its name.
func Lookup(name string) (*Issue, bool) {
	for _, i := range issues {
		if i.name == name {
			return i, true
		}
	}
	return nil, false
}
