// Package watch monitors the definitions tree and triggers registry reloads.
// Changes are debounced, the new snapshot is built fully off to the side, and
// a failed rebuild keeps the old snapshot live.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DebounceInterval coalesces bursts of file events into one reload
const DebounceInterval = 200 * time.Millisecond

// Watcher monitors a definitions tree and invokes the reload callback
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	onReload func() error
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a watcher over the definitions root. The callback runs after
// each debounced burst of changes.
func New(root string, onReload func() error, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		root:     root,
		watcher:  fsw,
		onReload: onReload,
		logger:   logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching the tree
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch definitions tree: %w", err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops the watcher and waits for the loop to exit
func (w *Watcher) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
	}
	close(w.stopChan)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Newly created project directories need watching too
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(DebounceInterval)
				timerC = timer.C
			} else {
				// Drain a pending fire before Reset so a stale tick
				// cannot consume the rearmed timer's signal.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(DebounceInterval)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info("definitions changed, reloading")
			if err := w.onReload(); err != nil {
				w.logger.Error("reload failed, keeping previous registry", zap.Error(err))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}
