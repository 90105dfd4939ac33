package pathway

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"inquest/internal/logging"
)

// WaitForFile waits up to grace for path to exist and be non-empty. A
// worker reports done through the status API slightly before its output
// file lands on shared storage, so callers allow a short grace window.
// Uses fsnotify on the parent directory with a polling fallback for
// filesystems that don't deliver events.
func WaitForFile(ctx context.Context, path string, grace time.Duration) bool {
	if fileReady(path) {
		return true
	}

	deadline := time.Now().Add(grace)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			logging.PathwayDebug("Watch failed for %s, polling instead: %v", path, err)
			watcher = nil
		}
	} else {
		logging.PathwayDebug("fsnotify unavailable, polling for %s: %v", path, err)
		watcher = nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if fileReady(path) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		if watcher != nil {
			select {
			case <-ctx.Done():
				return false
			case ev := <-watcher.Events:
				if ev.Name == path && fileReady(path) {
					return true
				}
			case <-watcher.Errors:
				// Fall through to the ticker check.
			case <-ticker.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return false
			case <-ticker.C:
			}
		}
	}
}

// fileReady reports whether the file exists with content.
func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
