// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/garytyler/pytest-asgi-server/pkg/types"
)

const (
	// LifespanAuto runs lifespan hooks when the application implements them.
	LifespanAuto LifespanMode = "auto"
	// LifespanOn requires lifespan hooks to succeed before serving.
	LifespanOn LifespanMode = "on"
	// LifespanOff never runs lifespan hooks.
	LifespanOff LifespanMode = "off"

	// DefaultHost is the interface servers bind to when none is configured.
	DefaultHost = "127.0.0.1"
	// DefaultKeepAlive is the idle keep-alive timeout in seconds.
	DefaultKeepAlive = 5
)

var (
	// ErrUnknownOption is returned when an option name is not a Config key.
	ErrUnknownOption = errors.New("unknown server option")

	// ErrInvalidConfig is returned when a Config value fails validation.
	ErrInvalidConfig = errors.New("invalid server config")

	optionKeys = sync.OnceValue(func() []string {
		keys := map[string]struct{}{}
		rt := reflect.TypeFor[Config]()
		for i := range rt.NumField() {
			name, _, _ := strings.Cut(rt.Field(i).Tag.Get("json"), ",")
			if name != "" && name != "-" {
				keys[name] = struct{}{}
			}
		}
		return slices.Sorted(maps.Keys(keys))
	})
)

type (
	// LifespanMode selects whether application startup and shutdown hooks run.
	LifespanMode string

	// Config is the full option set accepted by the embedded server. The JSON
	// names are the option keys recognized by handles and by the bootstrap
	// protocol.
	Config struct {
		Host     string           `json:"host"`
		Port     types.ListenPort `json:"port"`
		Lifespan LifespanMode     `json:"lifespan"`

		SSLKeyfile  string `json:"ssl_keyfile,omitempty"`
		SSLCertfile string `json:"ssl_certfile,omitempty"`

		// LimitMaxRequests makes Run return once this many requests were
		// received. Zero exits at the first housekeeping tick.
		LimitMaxRequests ldvalue.OptionalInt `json:"limit_max_requests,omitempty"`
		// LimitConcurrency answers 503 once more requests are in flight.
		LimitConcurrency ldvalue.OptionalInt `json:"limit_concurrency,omitempty"`

		// TimeoutKeepAlive is the idle connection timeout in seconds.
		TimeoutKeepAlive int `json:"timeout_keep_alive"`
		// TimeoutGracefulShutdown bounds shutdown in seconds; undefined waits
		// for in-flight requests indefinitely.
		TimeoutGracefulShutdown ldvalue.OptionalInt `json:"timeout_graceful_shutdown,omitempty"`

		LogLevel     string      `json:"log_level,omitempty"`
		AccessLog    bool        `json:"access_log"`
		ServerHeader bool        `json:"server_header"`
		DateHeader   bool        `json:"date_header"`
		Headers      [][2]string `json:"headers,omitempty"`
	}

	// UnknownOptionError names an option key that Config does not define.
	UnknownOptionError struct {
		Key string
	}

	// InvalidConfigError reports a Config field that failed validation.
	InvalidConfigError struct {
		Field  string
		Reason string
		Err    error
	}
)

// DefaultConfig returns the values used for keys a caller does not set.
func DefaultConfig() Config {
	return Config{
		Host:             DefaultHost,
		Lifespan:         LifespanAuto,
		TimeoutKeepAlive: DefaultKeepAlive,
		AccessLog:        true,
		ServerHeader:     true,
		DateHeader:       true,
	}
}

// OptionKeys returns the sorted set of recognized option names.
func OptionKeys() []string {
	return slices.Clone(optionKeys())
}

// IsOptionKey reports whether key is a recognized option name.
func IsOptionKey(key string) bool {
	_, found := slices.BinarySearch(optionKeys(), key)
	return found
}

// NormalizeLifespan converts a boolean lifespan value to "on" or "off".
// Any other value is returned unchanged.
func NormalizeLifespan(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return string(LifespanOn)
		}
		return string(LifespanOff)
	}
	return v
}

// DecodeConfig overlays options onto DefaultConfig and validates the result.
// Unknown keys fail with *UnknownOptionError, checked in sorted order.
func DecodeConfig(options map[string]any) (Config, error) {
	cfg := DefaultConfig()

	for _, key := range slices.Sorted(maps.Keys(options)) {
		if !IsOptionKey(key) {
			return cfg, &UnknownOptionError{Key: key}
		}
	}

	normalized := maps.Clone(options)
	if v, ok := normalized["lifespan"]; ok {
		normalized["lifespan"] = NormalizeLifespan(v)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return cfg, fmt.Errorf("encode server options: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, &InvalidConfigError{Field: "options", Reason: "cannot decode", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field for a usable value.
func (c Config) Validate() error {
	if err := types.HostAddress(c.Host).Validate(); err != nil {
		return &InvalidConfigError{Field: "host", Reason: "bad host", Err: err}
	}
	if err := c.Port.Validate(); err != nil {
		return &InvalidConfigError{Field: "port", Reason: "bad port", Err: err}
	}
	if err := c.Lifespan.Validate(); err != nil {
		return &InvalidConfigError{Field: "lifespan", Reason: "bad mode", Err: err}
	}
	if (c.SSLKeyfile == "") != (c.SSLCertfile == "") {
		return &InvalidConfigError{Field: "ssl_certfile", Reason: "ssl_keyfile and ssl_certfile must be set together"}
	}
	for field, v := range map[string]ldvalue.OptionalInt{
		"limit_max_requests":        c.LimitMaxRequests,
		"limit_concurrency":         c.LimitConcurrency,
		"timeout_graceful_shutdown": c.TimeoutGracefulShutdown,
	} {
		if n, ok := v.Get(); ok && n < 0 {
			return &InvalidConfigError{Field: field, Reason: fmt.Sprintf("must not be negative, got %d", n)}
		}
	}
	if c.TimeoutKeepAlive < 0 {
		return &InvalidConfigError{Field: "timeout_keep_alive", Reason: "must not be negative"}
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return &InvalidConfigError{Field: "log_level", Reason: "unknown level", Err: err}
		}
	}
	return nil
}

// IsTLS reports whether both a key file and a certificate file are set.
func (c Config) IsTLS() bool {
	return c.SSLKeyfile != "" && c.SSLCertfile != ""
}

// Scheme returns "https" when TLS is configured and "http" otherwise.
func (c Config) Scheme() string {
	if c.IsTLS() {
		return "https"
	}
	return "http"
}

// Validate returns an error unless the mode is auto, on or off.
func (m LifespanMode) Validate() error {
	switch m {
	case LifespanAuto, LifespanOn, LifespanOff:
		return nil
	default:
		return fmt.Errorf("lifespan %q: must be one of auto, on, off", string(m))
	}
}

// UnmarshalJSON accepts the mode names and the booleans true and false.
func (m *LifespanMode) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*m = LifespanMode(NormalizeLifespan(b).(string))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("lifespan must be a string or boolean: %w", err)
	}
	*m = LifespanMode(s)
	return nil
}

// Error implements the error interface for UnknownOptionError.
func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown server option %q", e.Key)
}

// Unwrap returns ErrUnknownOption.
func (e *UnknownOptionError) Unwrap() error { return ErrUnknownOption }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server option %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("server option %s: %s", e.Field, e.Reason)
}

// Unwrap returns both ErrInvalidConfig and the underlying cause.
func (e *InvalidConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}
