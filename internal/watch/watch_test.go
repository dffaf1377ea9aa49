package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewReloaderMissingFile(t *testing.T) {
	_, err := NewReloader(filepath.Join(t.TempDir(), "nope.yaml"), func() error { return nil }, testLogger())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReloadOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	if err := os.WriteFile(path, []byte("fuzzy_max_distance: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded := make(chan struct{}, 1)
	r, err := NewReloader(path, func() error {
		select {
		case loaded <- struct{}{}:
		default:
		}
		return nil
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Let the watcher start before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("fuzzy_max_distance: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-loaded:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
