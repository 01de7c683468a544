package cache

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	cherr "github.com/chordex/chordex/internal/errors"
)

// Watcher flags the cache stale when the upstream document file changes
// on disk. It never invalidates anything itself; the owner decides when
// to rebuild.
type Watcher struct {
	fw    *fsnotify.Watcher
	stale atomic.Bool
	done  chan struct{}
}

// WatchSource watches the upstream document path. onStale, when non-nil,
// fires on the first change after construction and after each Reset.
func WatchSource(path string, onStale func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cherr.Wrap(cherr.ErrCodeInternal, err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, cherr.New(cherr.ErrCodeCacheNotFound, "cannot watch source document file", err).
			WithDetail("path", path)
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}
	go w.run(onStale)
	return w, nil
}

func (w *Watcher) run(onStale func(string)) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			first := w.stale.CompareAndSwap(false, true)
			slog.Info("cache_source_changed",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			if first && onStale != nil {
				onStale(event.Name)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("cache_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Stale reports whether a source change has been observed since the last
// Reset.
func (w *Watcher) Stale() bool {
	return w.stale.Load()
}

// Reset clears the stale flag, typically after a rebuild.
func (w *Watcher) Reset() {
	w.stale.Store(false)
}

// Close stops watching. Blocks until the event loop drains.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
