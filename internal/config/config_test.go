// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garytyler/pytest-asgi-server/internal/issue"
	"github.com/garytyler/pytest-asgi-server/internal/testutil"
	"github.com/garytyler/pytest-asgi-server/pkg/cueutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	return testutil.MustWriteFile(t, filepath.Join(dir, name), content)
}

func load(t *testing.T, opts LoadOptions) (*Config, string, error) {
	t.Helper()
	p := NewProvider()
	cfg, err := p.Load(context.Background(), opts)
	return cfg, p.Source(), err
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, source, err := load(t, LoadOptions{SearchDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if source != "" {
		t.Errorf("Source() = %q, want empty", source)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("Load() = %+v, want defaults %+v", *cfg, *DefaultConfig())
	}
}

func TestLoad_CUEFile(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	dir := t.TempDir()
	path := writeFile(t, dir, "testserver.cue", `
readiness: {
	timeout:      "2m"
	poll_interval: "25ms"
}
process: max_read_lines: 10
log: level: "debug"
`)

	cfg, source, err := load(t, LoadOptions{SearchDir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if source != path {
		t.Errorf("Source() = %q, want %q", source, path)
	}
	if cfg.Readiness.Timeout != 2*time.Minute {
		t.Errorf("readiness.timeout = %s, want 2m", cfg.Readiness.Timeout)
	}
	if cfg.Readiness.PollInterval != 25*time.Millisecond {
		t.Errorf("readiness.poll_interval = %s, want 25ms", cfg.Readiness.PollInterval)
	}
	if cfg.Readiness.ThreadTimeout != DefaultConfig().Readiness.ThreadTimeout {
		t.Errorf("unset field lost its default: %s", cfg.Readiness.ThreadTimeout)
	}
	if cfg.Process.MaxReadLines != 10 {
		t.Errorf("process.max_read_lines = %d, want 10", cfg.Process.MaxReadLines)
	}
	if cfg.Log.Level != LogLevelDebug {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_TOMLFileFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.toml", `
[process]
interpreter = "/usr/bin/env"
terminate_timeout = "750ms"
`)
	t.Setenv(EnvConfigFile, path)

	cfg, source, err := load(t, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if source != path {
		t.Errorf("Source() = %q, want %q", source, path)
	}
	if cfg.Process.Interpreter != "/usr/bin/env" {
		t.Errorf("process.interpreter = %q", cfg.Process.Interpreter)
	}
	if cfg.Process.TerminateTimeout != 750*time.Millisecond {
		t.Errorf("process.terminate_timeout = %s, want 750ms", cfg.Process.TerminateTimeout)
	}
}

func TestLoad_CUEPreferredOverTOML(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	dir := t.TempDir()
	cuePath := writeFile(t, dir, "testserver.cue", `log: level: "warn"`)
	writeFile(t, dir, "testserver.toml", "[log]\nlevel = \"error\"\n")

	cfg, source, err := load(t, LoadOptions{SearchDir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if source != cuePath || cfg.Log.Level != LogLevelWarn {
		t.Errorf("Load() read %q with level %q, want the CUE file", source, cfg.Log.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "testserver.cue", `readiness: timeout: "30s"`)
	t.Setenv("TESTSERVER_READINESS_TIMEOUT", "90s")
	t.Setenv("TESTSERVER_PROCESS_MAX_READ_LINES", "7")

	cfg, _, err := load(t, LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Readiness.Timeout != 90*time.Second {
		t.Errorf("readiness.timeout = %s, want env value 90s", cfg.Readiness.Timeout)
	}
	if cfg.Process.MaxReadLines != 7 {
		t.Errorf("process.max_read_lines = %d, want 7", cfg.Process.MaxReadLines)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	dir := t.TempDir()
	tests := []struct {
		name      string
		opts      LoadOptions
		wantCause error
	}{
		{
			name: "missing explicit file",
			opts: LoadOptions{ConfigFilePath: filepath.Join(dir, "nope.cue")},
		},
		{
			name: "schema violation in CUE",
			opts: LoadOptions{ConfigFilePath: writeFile(t, dir, "bad.cue", `log: level: "loud"`)},
		},
		{
			name: "unknown key in CUE",
			opts: LoadOptions{ConfigFilePath: writeFile(t, dir, "extra.cue", `colour: "red"`)},
		},
		{
			name: "schema violation in TOML",
			opts: LoadOptions{ConfigFilePath: writeFile(t, dir, "bad.toml", "[process]\nmax_read_lines = 0\n")},
		},
		{
			name: "malformed TOML",
			opts: LoadOptions{ConfigFilePath: writeFile(t, dir, "broken.toml", "[process\n")},
		},
		{
			name:      "unsupported extension",
			opts:      LoadOptions{ConfigFilePath: writeFile(t, dir, "settings.yaml", "log: {}\n")},
			wantCause: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := load(t, tt.opts)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := issue.IssueOf(err); got != issue.SettingsLoadFailedId {
				t.Errorf("IssueOf() = %v, want %v", got, issue.SettingsLoadFailedId)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("error %v does not wrap %v", err, tt.wantCause)
			}
		})
	}
}

func TestLoad_SchemaErrorNamesField(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	dir := t.TempDir()
	path := writeFile(t, dir, "testserver.cue", `readiness: timeout: "soon"`)

	_, _, err := load(t, LoadOptions{ConfigFilePath: path})
	var verr *cueutil.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *cueutil.ValidationError in chain, got %v", err)
	}
	if verr.Path != "readiness.timeout" {
		t.Errorf("ValidationError.Path = %q, want readiness.timeout", verr.Path)
	}
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("TESTSERVER_LOG_LEVEL", "chatty")

	_, _, err := load(t, LoadOptions{SearchDir: t.TempDir()})
	if !errors.Is(err, ErrInvalidLogLevel) {
		t.Fatalf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMarshalTOML_LoadsBack(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	want := DefaultConfig()
	want.Readiness.SettleDelay = 0
	want.Process.ReadyPattern = `Listening at \S+`

	data, err := MarshalTOML(want)
	if err != nil {
		t.Fatalf("MarshalTOML() error = %v", err)
	}
	dir := t.TempDir()
	writeFile(t, dir, "testserver.toml", string(data))

	got, _, err := load(t, LoadOptions{SearchDir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v\n%s", err, data)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", *got, *want)
	}
}
