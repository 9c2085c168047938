package reflex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vthunder/grass/internal/logging"
)

// WatchDebounce is how long the reactions directory must stay quiet before
// a reload
const WatchDebounce = 100 * time.Millisecond

// Watch reloads reactions whenever a YAML file in the reactions directory
// changes. It returns once the watcher is running; the watcher stops when
// ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	if err := os.MkdirAll(e.reactionDir, 0755); err != nil {
		return fmt.Errorf("failed to create reactions dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(e.reactionDir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", e.reactionDir, err)
	}

	go e.watch(ctx, w)
	logging.Debug("reflex", "Watching %s", e.reactionDir)
	return nil
}

func (e *Engine) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	ticker := time.NewTicker(WatchDebounce)
	defer ticker.Stop()

	var pending time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !isReactionFile(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.Warn("reflex", "Watch error: %v", err)

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < WatchDebounce {
				continue
			}
			pending = time.Time{}
			if err := e.reload(); err != nil {
				logging.Warn("reflex", "Reload failed: %v", err)
			}
		}
	}
}

func isReactionFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
