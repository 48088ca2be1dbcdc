package syncctl

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher turns fsnotify events for one file into reload triggers.
//
// The parent directory is watched rather than the file, because atomic saves
// replace the file with a rename and a watch on the old inode would go quiet.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	name    string
	changes chan struct{}
}

func newFileWatcher(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &fileWatcher{
		watcher: w,
		name:    abs,
		changes: make(chan struct{}, 1),
	}, nil
}

// run forwards relevant events until ctx is done. Bursts collapse into one
// pending trigger.
func (fw *fileWatcher) run(ctx context.Context, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			select {
			case fw.changes <- struct{}{}:
			default:
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logger.Printf("Watch error: %v", err)
		}
	}
}

func (fw *fileWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != fw.name {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (fw *fileWatcher) close() {
	_ = fw.watcher.Close()
}
