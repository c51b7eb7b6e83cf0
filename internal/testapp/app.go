// SPDX-License-Identifier: MPL-2.0

// Package testapp is a small application used by the harness tests and the
// CLI. It registers itself as "testapp:app".
package testapp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/garytyler/pytest-asgi-server/internal/server"
	"github.com/garytyler/pytest-asgi-server/pkg/entrypoint"
)

// EntryPoint is the name the application is registered under.
const EntryPoint = "testapp:app"

var _ server.Lifespan = (*App)(nil)

// App serves:
//
//	GET /api       {"msg":"Hello World"}
//	GET /lifespan  {"startup":n,"shutdown":n}
//	/ws            broadcast chat room
type App struct {
	mux *http.ServeMux

	startups  atomic.Int64
	shutdowns atomic.Int64

	hubMu sync.Mutex
	hub   *hub
}

// LifespanCounts is the body of GET /lifespan.
type LifespanCounts struct {
	Startup  int64 `json:"startup"`
	Shutdown int64 `json:"shutdown"`
}

func init() {
	entrypoint.RegisterFactory(EntryPoint, func() (http.Handler, error) { return New(), nil })
}

// New returns a fresh App.
func New() *App {
	a := &App{mux: http.NewServeMux()}
	a.mux.HandleFunc("GET /api", a.handleAPI)
	a.mux.HandleFunc("GET /lifespan", a.handleLifespan)
	a.mux.HandleFunc("/ws", a.handleWS)
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.mux.ServeHTTP(w, r) }

// Startup counts the hook invocation.
func (a *App) Startup(context.Context) error {
	a.startups.Add(1)
	return nil
}

// Shutdown counts the hook invocation and closes the chat room.
func (a *App) Shutdown(context.Context) error {
	a.shutdowns.Add(1)

	a.hubMu.Lock()
	h := a.hub
	a.hub = nil
	a.hubMu.Unlock()
	if h != nil {
		h.close()
	}
	return nil
}

// Counts returns the lifespan hook counters.
func (a *App) Counts() LifespanCounts {
	return LifespanCounts{Startup: a.startups.Load(), Shutdown: a.shutdowns.Load()}
}

func (a *App) handleAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"msg": "Hello World"})
}

func (a *App) handleLifespan(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Counts())
}

// chatHub starts the chat room on first use.
func (a *App) chatHub() *hub {
	a.hubMu.Lock()
	defer a.hubMu.Unlock()
	if a.hub == nil {
		a.hub = newHub()
	}
	return a.hub
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
