package scope

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the rules file when it changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	guard   *Guard
	path    string
}

// NewWatcher creates a file watcher for the rules file. A missing file
// is not an error; the watcher simply has nothing to do until the file
// appears and the process restarts.
func NewWatcher(guard *Guard, path string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scope: create file watcher: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := watcher.Add(path); err != nil {
				watcher.Close()
				return nil, fmt.Errorf("scope: watch %q: %w", path, err)
			}
		}
	}

	return &Watcher{watcher: watcher, guard: guard, path: path}, nil
}

// Run blocks until ctx is cancelled, reloading rules after changes.
// Rapid successive writes are debounced.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := w.guard.Reload(w.path); err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
					} else {
						fmt.Fprintf(os.Stderr, "hot-reload: scope rules reloaded\n")
					}
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}
