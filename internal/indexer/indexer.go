// Package indexer reconciles a filesystem subtree with its catalog
// (spec.md §4.1), the hard part: lazy parent insertion, block-level
// re-digest on mtime change, two-phase is_alive sweep, and the root digest
// rewrite that makes the per-root change feed advance on any real change.
package indexer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/GuramDuka/homeostas-go/internal/apperrors"
	"github.com/GuramDuka/homeostas-go/internal/applog"
	"github.com/GuramDuka/homeostas-go/internal/catalog"
	"github.com/GuramDuka/homeostas-go/internal/digest512"
	"github.com/GuramDuka/homeostas-go/internal/walker"
)

const defaultBlockSize = 4096

// Indexer reconciles one tracked directory's filesystem tree with its
// catalog database.
type Indexer struct {
	cat          *catalog.Catalog
	root         string
	blockSize    int64
	modifiedOnly bool
}

// New creates an Indexer over an already-open catalog rooted at root.
func New(cat *catalog.Catalog, root string) *Indexer {
	return &Indexer{cat: cat, root: root, blockSize: defaultBlockSize}
}

// SetModifiedOnly controls whether entries whose mtime is unchanged are
// merely touched (fast path) rather than re-validated (spec.md §4.1 step 3).
func (ix *Indexer) SetModifiedOnly(v bool) { ix.modifiedOnly = v }

// Rescan performs one full rescan pass: walk, reconcile, sweep, reroot.
// It is itself one logical operation, but internally commits in short
// transactions at the granularity of individual catalog writes (spec.md
// §4.1: "batched sequence of short transactions") since modernc.org/sqlite
// autocommits each *sql.DB.Exec outside an explicit Tx.
func (ix *Indexer) Rescan(ctx context.Context) error {
	if err := ix.cat.ResetAliveForRescan(); err != nil {
		return err
	}
	if err := ix.cat.TouchAlive(catalog.RootID(), true); err != nil {
		return err
	}

	dirIDs := map[string]int64{"": catalog.RootID()}

	walkErr := walker.Walk(ctx, ix.root, func(ev walker.Event) error {
		parentRel := filepath.Dir(ev.Path)
		if parentRel == "." {
			parentRel = ""
		}
		parentID, ok := dirIDs[parentRel]
		if !ok {
			// The walker always visits a directory before descending into
			// it, so this should not happen; treat it as a catalog
			// invariant violation rather than silently reparenting.
			return fmt.Errorf("missing cached parent id for %q: %w", parentRel, apperrors.CatalogInvariant)
		}

		id, err := ix.reconcileEntry(parentID, ev)
		if err != nil {
			applog.ReportAppError("reconcile entry", err)
			if apperrors.Classify(err) == apperrors.KindTransientLocal {
				return nil
			}
			return err
		}
		if ev.IsDir {
			dirIDs[ev.Path] = id
		}
		return nil
	}, func(skippedPath string) {
		// The directory itself was touched above; its contents could not
		// be traversed this pass (permission revoked, say). Preserve the
		// existing catalog subtree rather than letting the sweep treat it
		// as vanished — a transient permission hiccup must not delete data
		// spec.md §4.1 "Failures" still considers present.
		if id, ok := dirIDs[skippedPath]; ok {
			if err := ix.preserveSubtree(id); err != nil {
				applog.ReportAppError("preserve inaccessible subtree", err)
			}
		}
	})
	if walkErr != nil {
		return walkErr
	}

	if _, err := ix.cat.SweepAll(false); err != nil {
		return err
	}

	return ix.rewriteRootDigest()
}

// preserveSubtree recursively marks an existing catalog subtree alive
// without touching its metadata or digests, so SweepAll does not treat an
// inaccessible-this-pass directory as vanished.
func (ix *Indexer) preserveSubtree(id int64) error {
	if err := ix.cat.TouchAlive(id, true); err != nil {
		return err
	}
	children, err := ix.cat.Children(id)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := ix.preserveSubtree(c.ID); err != nil {
			return err
		}
	}
	return nil
}

// reconcileEntry applies spec.md §4.1 step 3 to a single walked entry,
// returning its (possibly newly assigned) catalog id.
func (ix *Indexer) reconcileEntry(parentID int64, ev walker.Event) (int64, error) {
	existing, ok, err := ix.cat.LookupChild(parentID, ev.Name)
	if err != nil {
		return 0, err
	}

	if ok {
		if ix.modifiedOnly && existing.MtimeNS == ev.MtimeNS && existing.IsDir == ev.IsDir {
			if err := ix.cat.TouchAlive(existing.ID, true); err != nil {
				return 0, err
			}
			return existing.ID, nil
		}

		mtimeChanged := existing.MtimeNS != ev.MtimeNS
		if err := ix.cat.UpdateEntryMeta(existing.ID, ev.MtimeNS, ev.Size, ix.blockSize); err != nil {
			return 0, err
		}
		if !ev.IsDir && (mtimeChanged || !ix.modifiedOnly) {
			if err := ix.redigestFile(existing.ID, ev); err != nil {
				return existing.ID, err
			}
		}
		return existing.ID, nil
	}

	id, err := ix.cat.InsertEntry(parentID, ev.Name, ev.IsDir, ev.MtimeNS, ev.Size, ix.blockSize)
	if err != nil {
		return 0, err
	}
	if !ev.IsDir {
		if err := ix.redigestFile(id, ev); err != nil {
			return id, err
		}
	}
	return id, nil
}

// redigestFile re-hashes a regular file block-by-block, writing only the
// blocks whose digest actually changed, then rewrites the entry's digest
// as the digest of its concatenated block digests (spec.md §4.1 step 3,
// §3 "digest for files is the digest of concatenated block digests").
func (ix *Indexer) redigestFile(entryID int64, ev walker.Event) error {
	f, err := os.Open(filepath.Join(ix.root, ev.Path))
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", ev.Path, err, apperrors.TransientLocal)
	}
	defer f.Close()

	buf := make([]byte, ix.blockSize)
	var blockDigests [][]byte
	var blockNo int64

	for {
		n, readErr := io.ReadFull(f, buf)
		if n > 0 {
			blockNo++
			d := digest512.Sum(buf[:n])

			existing, ok, err := ix.cat.GetBlock(entryID, blockNo)
			if err != nil {
				return err
			}
			if !ok || existing.Digest != d {
				if err := ix.cat.UpsertBlock(entryID, blockNo, ev.MtimeNS, d); err != nil {
					return err
				}
				if err := ix.cat.MarkBlockDirty(entryID, blockNo); err != nil {
					return err
				}
			}
			dCopy := d
			blockDigests = append(blockDigests, dCopy[:])
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read %s: %w: %w", ev.Path, readErr, apperrors.TransientLocal)
		}
	}

	if err := ix.cat.DeleteBlocksAbove(entryID, blockNo); err != nil {
		return err
	}

	fileDigest := digest512.SumChunks(blockDigests)
	return ix.cat.SetEntryDigest(entryID, fileDigest)
}

// rewriteRootDigest always rewrites the root's digest mixing the previous
// root digest, a fast entropy word, and a shortcut hash over the root's
// direct children digests (spec.md §4.1 step 5): "this guarantees the
// per-root change feed advances if any block changed."
func (ix *Indexer) rewriteRootDigest() error {
	root, err := ix.cat.Root()
	if err != nil {
		return err
	}

	children, err := ix.cat.Children(catalog.RootID())
	if err != nil {
		return err
	}
	var shortcut [][]byte
	for _, c := range children {
		if c.HasDigest {
			d := c.Digest
			shortcut = append(shortcut, d[:])
		}
	}
	shortcutHash := digest512.SumChunks(shortcut)
	entropy := digest512.EntropyWord()

	var mix [][]byte
	prev := root.Digest
	mix = append(mix, prev[:])
	var entropyBytes [8]byte
	for i := range entropyBytes {
		entropyBytes[i] = byte(entropy >> (8 * i))
	}
	mix = append(mix, entropyBytes[:])
	mix = append(mix, shortcutHash[:])

	newDigest := digest512.SumChunks(mix)
	return ix.cat.SetEntryDigest(catalog.RootID(), newDigest)
}
