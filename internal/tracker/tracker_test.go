package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GuramDuka/homeostas-go/internal/digest512"
)

func TestLocalTrackerStartupShutdown(t *testing.T) {
	started := make(chan struct{})
	tr := NewLocal("/tmp/dir", nil, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	if tr.IsRemote() {
		t.Fatal("expected local tracker to report IsRemote() == false")
	}

	tr.Startup(context.Background())
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("runner never started")
	}

	if err := tr.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRemoteTrackerReportsRemoteKey(t *testing.T) {
	key := digest512.Sum([]byte("peer"))
	tr := NewRemote(key, nil, func(ctx context.Context) error { return nil })

	if !tr.IsRemote() {
		t.Fatal("expected remote tracker to report IsRemote() == true")
	}
	if tr.RemoteKey() != key {
		t.Fatalf("RemoteKey() = %x, want %x", tr.RemoteKey(), key)
	}
}

func TestShutdownPropagatesRunnerError(t *testing.T) {
	wantErr := errors.New("boom")
	tr := NewLocal("/tmp/dir", nil, func(ctx context.Context) error {
		<-ctx.Done()
		return wantErr
	})

	tr.Startup(context.Background())
	err := tr.Shutdown()
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected shutdown to surface runner error, got %v", err)
	}
}

func TestStartupTwiceIsNoop(t *testing.T) {
	calls := 0
	tr := NewLocal("/tmp/dir", nil, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return nil
	})

	tr.Startup(context.Background())
	tr.Startup(context.Background())
	time.Sleep(10 * time.Millisecond)
	tr.Shutdown()

	if calls != 1 {
		t.Fatalf("expected exactly 1 runner invocation, got %d", calls)
	}
}
