// SPDX-License-Identifier: MPL-2.0

// Package entrypoint names served applications with "<module>:<attribute>"
// strings and resolves them through a process-wide registry.
//
// Applications register themselves from an init function, the way
// database/sql drivers do, and a bootstrapped server process resolves the
// name it was given on its command line:
//
//	func init() {
//		entrypoint.Register("chat:app", chat.New())
//	}
package entrypoint

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/exp/maps"
)

var (
	// ErrInvalidEntryPoint is the sentinel error wrapped by InvalidEntryPointError.
	ErrInvalidEntryPoint = errors.New("invalid entry point")

	// ErrNotRegistered is returned by Resolve for names nobody registered.
	ErrNotRegistered = errors.New("entry point not registered")

	registryMu sync.RWMutex
	registry   = map[EntryPoint]Factory{}
)

type (
	// EntryPoint identifies an application by module path and attribute name.
	EntryPoint struct {
		Module    string
		Attribute string
	}

	// Factory builds the application for an entry point.
	Factory func() (http.Handler, error)

	// InvalidEntryPointError is returned when a string is not of the form
	// "<module>:<attribute>".
	InvalidEntryPointError struct {
		Value  string
		Reason string
	}

	// NotRegisteredError lists the registered names alongside the missing one.
	NotRegisteredError struct {
		EntryPoint EntryPoint
		Known      []string
	}
)

// Parse splits s at its single colon.
func Parse(s string) (EntryPoint, error) {
	module, attr, found := strings.Cut(s, ":")
	switch {
	case !found:
		return EntryPoint{}, &InvalidEntryPointError{Value: s, Reason: `must be in format "<module>:<attribute>"`}
	case strings.TrimSpace(module) == "":
		return EntryPoint{}, &InvalidEntryPointError{Value: s, Reason: "module is empty"}
	case strings.TrimSpace(attr) == "":
		return EntryPoint{}, &InvalidEntryPointError{Value: s, Reason: "attribute is empty"}
	case strings.Contains(attr, ":"):
		return EntryPoint{}, &InvalidEntryPointError{Value: s, Reason: "attribute must not contain ':'"}
	}
	return EntryPoint{Module: module, Attribute: attr}, nil
}

// MustParse is Parse that panics on error, for package-level registrations.
func MustParse(s string) EntryPoint {
	ep, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ep
}

// String returns "<module>:<attribute>".
func (e EntryPoint) String() string {
	return e.Module + ":" + e.Attribute
}

// Register makes h resolvable under name. It panics if name is malformed,
// h is nil, or the name is already taken.
func Register(name string, h http.Handler) {
	if h == nil {
		panic("entrypoint: Register handler is nil for " + name)
	}
	RegisterFactory(name, func() (http.Handler, error) { return h, nil })
}

// RegisterFactory makes f resolvable under name; f runs on every Resolve.
// It panics if name is malformed, f is nil, or the name is already taken.
func RegisterFactory(name string, f Factory) {
	ep := MustParse(name)
	if f == nil {
		panic("entrypoint: RegisterFactory factory is nil for " + name)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[ep]; dup {
		panic("entrypoint: Register called twice for " + name)
	}
	registry[ep] = f
}

// Resolve builds the application registered under ep.
func Resolve(ep EntryPoint) (http.Handler, error) {
	registryMu.RLock()
	f, ok := registry[ep]
	registryMu.RUnlock()
	if !ok {
		return nil, &NotRegisteredError{EntryPoint: ep, Known: Registered()}
	}

	h, err := f()
	if err != nil {
		return nil, fmt.Errorf("build application %s: %w", ep, err)
	}
	if h == nil {
		return nil, fmt.Errorf("build application %s: factory returned nil handler", ep)
	}
	return h, nil
}

// Registered returns the sorted names of every registered entry point.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for _, ep := range maps.Keys(registry) {
		names = append(names, ep.String())
	}
	slices.Sort(names)
	return names
}

// Error implements the error interface for InvalidEntryPointError.
func (e *InvalidEntryPointError) Error() string {
	return fmt.Sprintf("invalid entry point %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidEntryPoint for errors.Is() compatibility.
func (e *InvalidEntryPointError) Unwrap() error { return ErrInvalidEntryPoint }

// Error implements the error interface for NotRegisteredError.
func (e *NotRegisteredError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("entry point %s is not registered (no applications are registered)", e.EntryPoint)
	}
	return fmt.Sprintf("entry point %s is not registered (known: %s)", e.EntryPoint, strings.Join(e.Known, ", "))
}

// Unwrap returns ErrNotRegistered for errors.Is() compatibility.
func (e *NotRegisteredError) Unwrap() error { return ErrNotRegistered }
