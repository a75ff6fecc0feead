// Package watch reloads documents when their backing files change on disk.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/conductor-html/conductor/pkg/types"
)

// DefaultDebounce is how long a file must stay quiet after a change
// before it is reloaded. Editors tend to emit bursts of writes.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc consumes a settled file change. Engine.LoadFile satisfies it.
type ReloadFunc func(path string) error

// Watcher watches a set of document files and calls the reload
// callback once per file after changes settle.
type Watcher struct {
	watcher  *fsnotify.Watcher
	reload   ReloadFunc
	files    map[string]struct{}
	ignore   []string
	debounce time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// New creates a watcher for the given document files. The containing
// directories are watched rather than the files themselves; editors
// that save via rename would otherwise detach the watch.
func New(cfg *types.WatcherConfig, reload ReloadFunc, paths ...string) (*Watcher, error) {
	if reload == nil {
		return nil, fmt.Errorf("reload callback required")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}

	files := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	debounce := DefaultDebounce
	var ignore []string
	if cfg != nil {
		if cfg.DebounceMS > 0 {
			debounce = time.Duration(cfg.DebounceMS) * time.Millisecond
		}
		ignore = cfg.Ignore
	}

	log.Info().
		Int("files", len(files)).
		Dur("debounce", debounce).
		Msg("document watcher initialized")

	return &Watcher{
		watcher:  w,
		reload:   reload,
		files:    files,
		ignore:   ignore,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			path := filepath.Clean(ev.Name)
			if _, watched := w.files[path]; !watched || w.ignored(path) {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(w.debounce)
		case <-timer.C:
			for path := range pending {
				if err := w.reload(path); err != nil {
					log.Error().Err(err).Str("path", path).Msg("document reload failed")
					continue
				}
				log.Info().Str("path", path).Msg("document reloaded")
			}
			clear(pending)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("document watcher error")
		}
	}
}

// ignored reports whether any configured ignore pattern matches the
// path. Patterns are tried against the base name and the full
// slash-separated path.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	full := filepath.ToSlash(path)
	for _, pat := range w.ignore {
		if ok, err := doublestar.Match(pat, base); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pat, full); err == nil && ok {
			return true
		}
	}
	return false
}

// Files returns the watched file paths, resolved to absolute form.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
