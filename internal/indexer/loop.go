package indexer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/applog"
	"github.com/GuramDuka/homeostas-go/internal/backoff"
	"github.com/GuramDuka/homeostas-go/internal/catalog"
	"github.com/GuramDuka/homeostas-go/internal/walker"
)

// DefaultInterval is the periodic full-rescan cadence. spec.md §4.1 leaves
// the cadence itself unspecified ("one rescan thread per tracked
// directory"); 30s balances catching changes promptly against disk I/O on
// an otherwise idle tree.
const DefaultInterval = 30 * time.Second

// dirtyPollInterval is how often Loop checks w.DrainDirty for fsnotify
// events accumulated since the last check.
const dirtyPollInterval = time.Second

// Loop runs periodic full rescans at interval (DefaultInterval if zero),
// plus an on-demand modified_only rescan whenever w reports a dirty path
// (SPEC_FULL.md §4.1's fsnotify supplement to the periodic walk). It
// returns when ctx is cancelled, or when Rescan returns a
// KindCatalogInvariant/KindFatal error it cannot retry past.
func (ix *Indexer) Loop(ctx context.Context, interval time.Duration, w *walker.Watcher) error {
	tag := applog.NewWorkerTag()
	applog.Debug("rescan thread starting", "worker", tag, "root", ix.root)

	if interval <= 0 {
		interval = DefaultInterval
	}
	if w != nil {
		if err := w.AddDir(ix.root); err != nil {
			applog.ReportAppError("watch tracked root failed worker="+tag, err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var dirtyTick *time.Ticker
	var dirtyC <-chan time.Time
	if w != nil {
		dirtyTick = time.NewTicker(dirtyPollInterval)
		defer dirtyTick.Stop()
		dirtyC = dirtyTick.C
	}

	bo := backoff.New(time.Second, 30*time.Second)

	runRescan := func(modifiedOnly bool) error {
		ix.SetModifiedOnly(modifiedOnly)
		if err := ix.Rescan(ctx); err != nil {
			switch apperrors.Classify(err) {
			case apperrors.KindCatalogInvariant, apperrors.KindFatal:
				return err
			default:
				applog.ReportAppError("rescan failed, retrying worker="+tag, err)
				select {
				case <-time.After(bo.Next()):
				case <-ctx.Done():
				}
				return nil
			}
		}
		bo.Reset()
		if w != nil {
			ix.syncWatches(w)
		}
		return nil
	}

	if err := runRescan(false); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := runRescan(false); err != nil {
				return err
			}
		case <-dirtyC:
			if len(w.DrainDirty()) == 0 {
				continue
			}
			if err := runRescan(true); err != nil {
				return err
			}
		}
	}
}

// syncWatches adds every live directory the last rescan found to w, so
// that subdirectories created after startup get fsnotify coverage too.
func (ix *Indexer) syncWatches(w *walker.Watcher) {
	var walk func(parentID int64, parentPath string)
	walk = func(parentID int64, parentPath string) {
		children, err := ix.cat.Children(parentID)
		if err != nil {
			applog.ReportAppError("list children for watch sync failed", err)
			return
		}
		for _, e := range children {
			if !e.IsDir || !e.IsAlive {
				continue
			}
			dir := filepath.Join(parentPath, e.Name)
			if err := w.AddDir(dir); err != nil {
				applog.ReportAppError("watch subdirectory failed", err)
				continue
			}
			walk(e.ID, dir)
		}
	}
	walk(catalog.RootID(), ix.root)
}
