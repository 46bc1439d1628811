package services

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ErrWatcherClosed is returned when using a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// DefaultDebounce is how long a path must be quiet before its change is reported.
const DefaultDebounce = 100 * time.Millisecond

// AssetWatcher reports settled file changes under watched directories.
type AssetWatcher struct {
	mu sync.Mutex

	watcher  *fsnotify.Watcher
	paths    map[string]bool
	pending  map[string]*time.Timer
	debounce time.Duration
	onChange func(path string)
	logger   zerolog.Logger

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewAssetWatcher starts a watcher that calls onChange once per settled change.
func NewAssetWatcher(debounce time.Duration, logger zerolog.Logger, onChange func(path string)) (*AssetWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce < 0 {
		debounce = 0
	}

	w := &AssetWatcher{
		watcher:  fsw,
		paths:    make(map[string]bool),
		pending:  make(map[string]*time.Timer),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		closeCh:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// WatchRecursive watches a directory and all of its subdirectories.
// Hidden directories are skipped.
func (w *AssetWatcher) WatchRecursive(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absRoot); err != nil {
		return err
	}

	return filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != absRoot && isHidden(p) {
			return filepath.SkipDir
		}
		return w.watch(p)
	})
}

func (w *AssetWatcher) watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.paths[dir] = true
	return nil
}

// WatchedPaths returns the number of watched directories.
func (w *AssetWatcher) WatchedPaths() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// Close stops the watcher and drops pending notifications.
func (w *AssetWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.watcher.Close()
}

func (w *AssetWatcher) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Asset watcher error")
		}
	}
}

func (w *AssetWatcher) handle(ev fsnotify.Event) {
	if isHidden(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.watch(ev.Name)
			return
		}
	}

	w.schedule(ev.Name)
}

// schedule restarts the debounce timer for a path.
func (w *AssetWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()

		w.onChange(path)
	})
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return len(base) > 1 && base[0] == '.'
}
