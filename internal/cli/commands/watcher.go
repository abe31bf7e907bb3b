package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher reports changes to a fixed set of files. fsnotify watches
// their directories so that editors replacing a file are still seen.
type fileWatcher struct {
	w      *fsnotify.Watcher
	files  map[string]bool
	logger *slog.Logger
}

func newFileWatcher(files []string, logger *slog.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	fw := &fileWatcher{w: w, files: make(map[string]bool, len(files)), logger: logger}
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		fw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

// Run calls fn after each burst of changes, waiting delay after the last
// event. It returns when ctx is done or the watcher is closed.
func (fw *fileWatcher) Run(ctx context.Context, delay time.Duration, fn func()) error {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !fw.files[abs] {
				continue
			}
			fw.logger.Debug("module file changed", slog.String("file", abs), slog.String("op", event.Op.String()))

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, fn)
			mu.Unlock()
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops watching.
func (fw *fileWatcher) Close() error {
	return fw.w.Close()
}
