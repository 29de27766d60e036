package walker

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
)

// Watcher supplements the periodic full Walk with fsnotify-driven
// supplemental triggers (SPEC_FULL.md §4.1): it records the path named by
// each change event (file or directory) as dirty as events arrive so the indexer can rescan promptly instead of
// waiting for the next scheduled pass, without skipping the scheduled
// pass itself (the fsnotify feed is advisory, the full walk remains the
// source of truth).
type Watcher struct {
	fs *fsnotify.Watcher

	mu      sync.Mutex
	dirty   map[string]struct{}
	watched map[string]struct{}
}

// NewWatcher creates an fsnotify-backed supplemental watcher.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w: %w", err, apperrors.TransientIO)
	}
	w := &Watcher{
		fs:      fw,
		dirty:   make(map[string]struct{}),
		watched: make(map[string]struct{}),
	}
	go w.loop()
	return w, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// AddDir registers dir for change notifications. Re-adding an already
// watched directory is a no-op.
func (w *Watcher) AddDir(dir string) error {
	w.mu.Lock()
	_, already := w.watched[dir]
	w.mu.Unlock()
	if already {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w: %w", dir, err, apperrors.TransientIO)
	}
	w.mu.Lock()
	w.watched[dir] = struct{}{}
	w.mu.Unlock()
	return nil
}

// RemoveDir stops watching dir (e.g. after it was deleted from the tree).
func (w *Watcher) RemoveDir(dir string) {
	w.mu.Lock()
	delete(w.watched, dir)
	w.mu.Unlock()
	w.fs.Remove(dir)
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			w.dirty[ev.Name] = struct{}{}
			w.mu.Unlock()
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			// A watcher error does not abort the supplemental feed; the
			// next scheduled full walk still covers everything.
		}
	}
}

// DrainDirty returns and clears the set of paths that changed since the
// last call, as an unordered slice.
func (w *Watcher) DrainDirty() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirty))
	for p := range w.dirty {
		out = append(out, p)
	}
	w.dirty = make(map[string]struct{})
	return out
}
