// Package watch hot-reloads the tunables file. Rule sets themselves are
// never reloaded this way: they are immutable versions, and switching
// versions is an explicit store operation.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	onLoad  func() error
	logger  *slog.Logger
}

// NewReloader watches path and calls onLoad after changes settle.
func NewReloader(path string, onLoad func() error, logger *slog.Logger) (*Reloader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %q: %w", path, err)
	}
	return &Reloader{watcher: watcher, path: path, onLoad: onLoad, logger: logger}, nil
}

// Run blocks until ctx is cancelled. Writes are debounced for 500ms so a
// half-saved file is not loaded.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.onLoad(); err != nil {
						r.logger.Error("tunables reload failed", "path", r.path, "error", err)
					} else {
						r.logger.Info("tunables reloaded", "path", r.path)
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}
