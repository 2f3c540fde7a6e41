// ABOUTME: Hot-reload watcher for the daemon configuration file.
// ABOUTME: Debounces fsnotify write events and invokes registered change callbacks.

package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces the bursts of write events editors produce
// when saving a file.
const debounceInterval = 500 * time.Millisecond

// ChangeCallback is invoked with the old and the freshly loaded config
// after the watched file changes and parses successfully.
type ChangeCallback func(old, updated *Config)

// Watcher reloads the configuration when the underlying file changes.
// A change that fails to load or validate is logged and ignored; the last
// good configuration stays active.
type Watcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []ChangeCallback

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher loads path once and starts watching it for changes.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading initial config: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	w := &Watcher{
		path:      path,
		fsWatcher: fsWatcher,
		logger:    logger,
		current:   cfg,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Config returns the last successfully loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fsWatcher.Close()
		<-w.done
	})
	return err
}

// watchLoop debounces file events into reloads.
func (w *Watcher) watchLoop() {
	defer close(w.done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					w.logger.Warn("config file removed or renamed", "path", w.path)
					go w.rearm()
				}
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// rearm re-adds the watch after the file was removed or renamed. Editors
// replace files on save and the new inode may not exist yet, so keep trying
// until the Add succeeds or the watcher stops. A successful re-arm triggers
// a reload since the replacement content was never observed.
func (w *Watcher) rearm() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := w.fsWatcher.Add(w.path); err == nil {
			w.reload()
			return
		}
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}
	}
}

// reload loads the file and, on success, swaps the config and fires the
// callbacks outside the lock.
func (w *Watcher) reload() {
	updated, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed; keeping previous config",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	for _, cb := range callbacks {
		cb(old, updated)
	}
}
