// Package watcher reports changes under the file-backed catalog
// directories (Data, Snippets, Render) so callers can refresh whatever
// depends on them.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"botweave/internal/log"
)

// DefaultDebounce coalesces bursts of file events into one change.
const DefaultDebounce = 100 * time.Millisecond

// Change identifies which catalog directory was modified.
type Change struct {
	// Catalog is the logical name the directory was registered under,
	// e.g. "data", "snippets", "render".
	Catalog string
}

// Watcher monitors a set of catalog directories and emits debounced
// change notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	dirs      map[string]string
	changes   chan Change
	done      chan struct{}
}

// New creates a watcher over dirs, a map of catalog name to directory
// path. A non-positive debounce falls back to DefaultDebounce.
func New(dirs map[string]string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	cleaned := make(map[string]string, len(dirs))
	for name, dir := range dirs {
		cleaned[name] = filepath.Clean(dir)
	}

	return &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		dirs:      cleaned,
		changes:   make(chan Change, 8),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching and returns the change channel. Registered
// directories that do not exist yet are skipped with a warning; they
// can be picked up by a restart once created.
func (w *Watcher) Start() (<-chan Change, error) {
	for name, dir := range w.dirs {
		if err := w.addTree(dir); err != nil {
			if os.IsNotExist(err) {
				log.Warn(log.CatWatcher, "catalog dir missing, not watching", "catalog", name, "dir", dir)
				continue
			}
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go w.loop()

	return w.changes, nil
}

// addTree registers dir and every subdirectory beneath it. fsnotify
// does not recurse on its own.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsWatcher.Add(path)
	})
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing. Each catalog gets
// its own pending flag so one timer fire can report several catalogs.
func (w *Watcher) loop() {
	defer close(w.changes)

	var timer *time.Timer
	pending := make(map[string]bool)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			catalog, relevant := w.classify(event)
			if !relevant {
				continue
			}

			// New subdirectories must be registered to keep the tree
			// covered.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsWatcher.Add(event.Name); err != nil {
						log.Warn(log.CatWatcher, "failed to watch new subdirectory", "dir", event.Name, "error", err.Error())
					}
				}
			}

			pending[catalog] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC(timer):
			for catalog := range pending {
				select {
				case w.changes <- Change{Catalog: catalog}:
				default:
				}
				delete(pending, catalog)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// timerC returns the timer's channel, or a nil channel that never
// fires when no timer is armed.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// classify maps an event path onto the catalog that contains it.
func (w *Watcher) classify(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	path := filepath.Clean(event.Name)
	for name, dir := range w.dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return name, true
		}
	}
	return "", false
}
