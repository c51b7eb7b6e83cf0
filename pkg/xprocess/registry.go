// SPDX-License-Identifier: MPL-2.0

package xprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"github.com/charmbracelet/log"
	"golang.org/x/exp/maps"
)

const (
	logFileName = "xprocess.log"
	pidFileName = "xprocess.PID"

	logTailLines     = 20
	logTailLineBytes = 256
)

type (
	// Registry starts named processes and remembers them for liveness
	// queries and termination.
	Registry struct {
		dir    string
		logger *log.Logger

		mu    sync.Mutex
		procs map[string]*ProcessInfo
		locks map[string]*sync.Mutex
	}

	// Option configures a Registry.
	Option func(*Registry)
)

// WithLogger sets the registry logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns a Registry rooted at dir, creating it if needed.
func NewRegistry(dir string, opts ...Option) (*Registry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve registry dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	r := &Registry{
		dir:    abs,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "xprocess"}),
		procs:  map[string]*ProcessInfo{},
		locks:  map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the absolute registry directory.
func (r *Registry) Dir() string { return r.dir }

// Info returns the record for name, or nil if it was never started here.
func (r *Registry) Info(name string) *ProcessInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[name]
}

// Names returns the sorted names of every process started by the registry.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := maps.Keys(r.procs)
	slices.Sort(names)
	return names
}

// TerminateAll terminates every running process.
func (r *Registry) TerminateAll(timeout time.Duration) error {
	r.mu.Lock()
	infos := maps.Values(r.procs)
	r.mu.Unlock()

	var errs []error
	for _, info := range infos {
		if err := info.Terminate(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure makes sure the named process is running. If it already is, its
// record is returned at once. Otherwise the process is started and Ensure
// blocks until a line of its output matches s.Pattern. Any failure kills the
// child before returning a *StartError.
func (r *Registry) Ensure(ctx context.Context, name string, s Starter) (*ProcessInfo, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	pattern, err := s.compile()
	if err != nil {
		return nil, err
	}

	nameLock := r.nameLock(name)
	nameLock.Lock()
	defer nameLock.Unlock()

	if info := r.Info(name); info.IsRunning() {
		r.logger.Info("process already running", "name", name, "pid", info.PID)
		return info, nil
	}

	procDir := filepath.Join(r.dir, name)
	if err := os.MkdirAll(procDir, 0o755); err != nil {
		return nil, fmt.Errorf("create process dir: %w", err)
	}
	lock, err := acquireDirLock(procDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	quit := make(chan struct{})
	info, lines, err := r.spawn(name, procDir, s, quit)
	if err != nil {
		return nil, &StartError{Name: name, Err: err}
	}

	err = r.waitReady(ctx, info, s, pattern, lines)
	close(quit)
	if err != nil {
		if killErr := info.kill(); killErr != nil {
			r.logger.Warn("kill after failed start", "name", name, "err", killErr)
		}
		return nil, &StartError{
			Name:    name,
			LogPath: info.LogPath,
			LogTail: tailLines(info.LogPath, logTailLines),
			Err:     err,
		}
	}

	r.mu.Lock()
	r.procs[name] = info
	r.mu.Unlock()

	r.logger.Info("process ready", "name", name, "pid", info.PID, "log", info.LogPath)
	return info, nil
}

func (r *Registry) nameLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// spawn starts the child with stdout and stderr merged into the log file and
// into a pipe whose lines are returned for readiness matching.
func (r *Registry) spawn(name, procDir string, s Starter, quit <-chan struct{}) (*ProcessInfo, <-chan string, error) {
	logPath := filepath.Join(procDir, logFileName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, nil, fmt.Errorf("create log file: %w", err)
	}

	pr, pw := io.Pipe()
	out := io.MultiWriter(logFile, pw)

	cmd := exec.Command(s.Args[0], s.Args[1:]...)
	cmd.Env = s.Env
	cmd.Dir = s.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = 2 * time.Second

	r.logger.Debug("spawning", "name", name, "cmd", shellescape.QuoteCommand(s.Args))
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		_ = pw.Close()
		return nil, nil, fmt.Errorf("spawn %s: %w", shellescape.QuoteCommand(s.Args), err)
	}

	pidPath := filepath.Join(procDir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		r.logger.Warn("write pid file", "path", pidPath, "err", err)
	}

	info := newProcessInfo(name, cmd, logPath, pidPath)
	lines := make(chan string)

	go func() {
		waitErr := cmd.Wait()
		_ = pw.Close()
		_ = logFile.Close()
		info.finish(waitErr)
	}()

	go scanLines(pr, lines, quit)

	return info, lines, nil
}

func (r *Registry) waitReady(ctx context.Context, info *ProcessInfo, s Starter, pattern *regexp.Regexp, lines <-chan string) error {
	timer := time.NewTimer(s.timeout())
	defer timer.Stop()

	maxLines := s.maxReadLines()
	read := 0
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				<-info.Done()
				return exitedError(info)
			}
			if pattern.MatchString(line) {
				return nil
			}
			read++
			if maxLines > 0 && read >= maxLines {
				return fmt.Errorf("%w after %d lines (pattern %q)", ErrPatternNotFound, read, s.Pattern)
			}
		case <-timer.C:
			return fmt.Errorf("%w after %s (pattern %q)", ErrReadyTimeout, s.timeout(), s.Pattern)
		case <-ctx.Done():
			return fmt.Errorf("waiting for %q: %w", info.Name, ctx.Err())
		}
	}
}

func exitedError(info *ProcessInfo) error {
	if exitErr := info.ExitErr(); exitErr != nil {
		return fmt.Errorf("%w: %w", ErrProcessExited, exitErr)
	}
	return ErrProcessExited
}

// scanLines forwards each line of r to lines until quit is closed, then
// keeps draining r so the child never blocks on a full pipe.
func scanLines(r io.Reader, lines chan<- string, quit <-chan struct{}) {
	defer close(lines)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-quit:
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
	if sc.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

func tailLines(path string, n int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) == 1 && all[0] == "" {
		return nil
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	for i, line := range all {
		if len(line) > logTailLineBytes {
			all[i] = line[:logTailLineBytes] + " [truncated]"
		}
	}
	return all
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: process name %q must be a single path element", ErrInvalidStarter, name)
	}
	return nil
}
