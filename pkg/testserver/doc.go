// SPDX-License-Identifier: MPL-2.0

// Package testserver manages throwaway HTTP servers for integration tests.
//
// A Handle owns one server configuration and one server instance at a time.
// Two kinds exist:
//
//   - ThreadServer runs the handler on a goroutine of the test process. It
//     cannot receive signals, so it stops only after serving the number of
//     requests given by the "limit_max_requests" option. Lifespan hooks never
//     run in-process.
//   - ProcessServer launches a separate OS process through a generated
//     bootstrap script and an xprocess.Registry. The process resolves the
//     application by its registered entry point ("module:attribute"), runs
//     lifespan hooks and is stopped with SIGTERM.
//
// Binaries that serve themselves, test binaries included, must call
// MainIfBootstrap before doing anything else:
//
//	func TestMain(m *testing.M) {
//	    testserver.MainIfBootstrap()
//	    os.Exit(m.Run())
//	}
//
// Factories tie handles to a test and stop them in t.Cleanup.
package testserver
