package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/catalog"
	"github.com/GuramDuka/homeostas-go/internal/walker"
)

func TestLoopPerformsAnImmediateRescanOnStart(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	ix := New(openTestCatalog(t), root)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Loop(ctx, time.Hour, nil) }()

	_, ok, err := ix.cat.LookupChild(catalog.RootID(), "a.txt")
	deadline := time.Now().Add(2 * time.Second)
	for !ok && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		_, ok, err = ix.cat.LookupChild(catalog.RootID(), "a.txt")
	}
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected the initial rescan to have indexed a.txt before the first tick")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestLoopStopsPromptlyOnCancel(t *testing.T) {
	ix := New(openTestCatalog(t), t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Loop(ctx, time.Hour, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Loop to return promptly after cancel")
	}
}

func TestSyncWatchesAddsLiveSubdirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	ix := New(openTestCatalog(t), root)
	if err := ix.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}

	w, err := walker.NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ix.syncWatches(w)
}
