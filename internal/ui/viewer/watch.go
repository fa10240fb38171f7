package viewer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a slicer produces while it
// rewrites a file
const reloadDelay = 250 * time.Millisecond

// fileWatcher calls onChange once a watched file has settled after being
// written, replaced or renamed into place
type fileWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
}

// watchFile watches the directory of path, since editors and slicers often
// replace files instead of writing them in place
func watchFile(path string, logger *slog.Logger, onChange func()) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	fw := &fileWatcher{
		path:    abs,
		watcher: w,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go fw.loop(onChange)
	logger.Debug("[Watch] Watching file", "path", abs)
	return fw, nil
}

func (fw *fileWatcher) loop(onChange func()) {
	defer close(fw.done)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			switch {
			case event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Rename == fsnotify.Rename:
				fw.schedule(onChange)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("[Watch] Watcher error", "error", err)
		}
	}
}

// schedule restarts the settle timer
func (fw *fileWatcher) schedule(onChange func()) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(reloadDelay, func() {
		fw.logger.Info("[Watch] File changed", "path", fw.path)
		onChange()
	})
}

// Close stops watching. A reload already scheduled is dropped.
func (fw *fileWatcher) Close() error {
	err := fw.watcher.Close()
	<-fw.done
	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	return err
}
