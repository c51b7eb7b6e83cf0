// SPDX-License-Identifier: MPL-2.0

// Package watch restarts a running server when source files change.
//
// A Watcher reports debounced batches of changed paths that match
// doublestar patterns. Reloader turns a batch into a Stop and Start of a
// server handle.
package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch is reported.
const DefaultDebounce = 300 * time.Millisecond

var (
	// DefaultPatterns select Go sources and harness settings.
	DefaultPatterns = []string{"**/*.go", "**/testserver.cue", "**/testserver.toml"}

	defaultIgnores = []string{
		"**/.git/**",
		"**/vendor/**",
		"**/testdata/**",
		"**/*.swp",
		"**/*~",
		"**/.DS_Store",
	}

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watcher already running")
)

type (
	// ChangeFunc receives one debounced batch of paths relative to the
	// watched root, sorted.
	ChangeFunc func(ctx context.Context, changed []string) error

	// Config configures a Watcher.
	Config struct {
		// Root is the directory tree to watch. Empty means the working
		// directory.
		Root string
		// Patterns select the files that count as changes. Empty means
		// DefaultPatterns.
		Patterns []string
		// Ignore adds patterns to the built-in ignore list.
		Ignore   []string
		Debounce time.Duration
		OnChange ChangeFunc
		Logger   *log.Logger
	}

	// Watcher watches a directory tree. Run may be called once.
	Watcher struct {
		root     string
		patterns []string
		ignores  []string
		debounce time.Duration
		onChange ChangeFunc
		logger   *log.Logger

		fsw     *fsnotify.Watcher
		running atomic.Bool
	}
)

// New validates cfg and registers every directory under the root.
func New(cfg Config) (*Watcher, error) {
	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := checkPatterns(patterns); err != nil {
		return nil, err
	}
	if err := checkPatterns(cfg.Ignore); err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		patterns: slices.Clone(patterns),
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		logger:   cfg.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "watch"})
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := w.addTree(root); err != nil {
		_ = w.fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Run reports batches until ctx is done. Batches are delivered from this
// goroutine, one at a time; events arriving during a callback start the
// next batch. It returns nil when ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.fsw.Close()

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel, match := w.classify(ev)
			if !match {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatal(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watcher error", "err", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			w.logger.Debug("change detected", "paths", changed)
			if w.onChange == nil {
				continue
			}
			if err := w.onChange(ctx, changed); err != nil {
				w.logger.Error("change handler failed", "err", err)
			}
		}
	}
}

// classify extends the watch to new directories and reports whether ev is
// a change to a watched file.
func (w *Watcher) classify(ev fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return "", false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "dir", ev.Name, "err", err)
			}
			return "", false
		}
	}
	if ev.Op == fsnotify.Chmod {
		return "", false
	}
	return rel, matchAny(w.patterns, rel)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.root, path); relErr == nil && rel != "." {
			if w.ignored(filepath.ToSlash(rel) + "/") {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool { return matchAny(w.ignores, rel) }

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func checkPatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("watch: invalid pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	return nil
}
