package indexer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/catalog"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRescanEmptyDirectoryProducesOnlyRoot(t *testing.T) {
	root := t.TempDir()
	c := openTestCatalog(t)
	ix := New(c, root)

	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	rootEntry, err := c.Root()
	if err != nil {
		t.Fatal(err)
	}
	if !rootEntry.HasDigest {
		t.Fatal("expected root digest to be set after rescan")
	}
	children, err := c.Children(catalog.RootID())
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 0 {
		t.Fatalf("expected no children for empty directory, got %d", len(children))
	}
}

func TestRescanSingleFileProducesExpectedBlocks(t *testing.T) {
	root := t.TempDir()
	content := bytes.Repeat([]byte{0x41}, 10000)
	if err := os.WriteFile(filepath.Join(root, "a.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}

	c := openTestCatalog(t)
	ix := New(c, root)
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	children, err := c.Children(catalog.RootID())
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	fileEntry := children[0]

	blocks, err := c.Blocks(fileEntry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks for 10000 bytes at 4096 block size, got %d", len(blocks))
	}
	if !fileEntry.HasDigest {
		t.Fatal("expected file digest to be set")
	}
}

func TestRescanTwiceUnchangedTreeIsIdempotent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	c := openTestCatalog(t)
	ix := New(c, root)
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	children, err := c.Children(catalog.RootID())
	if err != nil {
		t.Fatal(err)
	}
	first := children[0]
	firstBlocks, err := c.Blocks(first.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	children, err = c.Children(catalog.RootID())
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ID != first.ID {
		t.Fatalf("expected the same single entry to survive a second rescan, got %+v", children)
	}
	secondBlocks, err := c.Blocks(children[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(firstBlocks) != len(secondBlocks) || firstBlocks[0].Digest != secondBlocks[0].Digest {
		t.Fatal("expected block digests unchanged across an idempotent rescan")
	}
}

func TestRescanDeletedFileTombstonesTrackedBlocks(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(path, []byte("will vanish"), 0644); err != nil {
		t.Fatal(err)
	}

	c := openTestCatalog(t)
	ix := New(c, root)
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	children, err := c.Children(catalog.RootID())
	if err != nil {
		t.Fatal(err)
	}
	fileID := children[0].ID

	var tracker [64]byte
	tracker[0] = 0x09
	if err := c.AddRemoteTracker(tracker); err != nil {
		t.Fatal(err)
	}
	if err := c.AckEntry(tracker, fileID); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, ok, err := c.GetEntry(fileID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected deleted file's entry row to be swept")
	}

	dirty, err := c.DirtyBlocks(tracker)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirty) == 0 {
		t.Fatal("expected at least one tombstone row for the deleted file's block")
	}
	for _, d := range dirty {
		if !d.Tombstone {
			t.Fatalf("expected only tombstone rows after deletion, got %+v", d)
		}
	}
}

func TestRescanDetectsModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "m.txt")
	if err := os.WriteFile(path, []byte("version one"), 0644); err != nil {
		t.Fatal(err)
	}

	c := openTestCatalog(t)
	ix := New(c, root)
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	children, _ := c.Children(catalog.RootID())
	firstDigest := children[0].Digest

	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(path, []byte("version two, much longer content than before"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	children, _ = c.Children(catalog.RootID())
	if children[0].Digest == firstDigest {
		t.Fatal("expected file digest to change after content modification")
	}
}
