package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pfarch/pfarch/internal/logging"
)

// ReloadCallback receives every successfully loaded configuration. A
// callback error is logged and the watcher keeps running.
type ReloadCallback func(cfg *File) error

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes. Invalid files are
// logged and the previous configuration stays in effect. Watcher implements
// lifecycle.Component.
type Watcher struct {
	path     string
	debounce time.Duration
	callback ReloadCallback
	logger   *logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped chan struct{}
	ready   chan struct{}
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, callback ReloadCallback) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Name implements lifecycle.Component.
func (w *Watcher) Name() string {
	return "Config Watcher"
}

// Start loads the file, hands it to the callback and begins watching. It
// returns once the file watch is in place.
func (w *Watcher) Start(ctx context.Context) error {
	cfg, err := Load(w.path)
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}
	if err := w.callback(cfg); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	// The watch outlives Start's ctx; Stop ends it.
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
}

func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		w.logger.Error("Failed to watch %s: %v", w.path, err)
		return
	}
	w.logger.Info("Watching %s for changes", w.path)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic writes replace the inode; watch the new file.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := fw.Add(w.path); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.scheduleReload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Failed to reload config, keeping previous: %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.Warn("Config reload callback failed: %v", err)
		return
	}
	w.logger.Info("Reloaded config from %s", w.path)
}

// Stop ends the watch and waits for the loop to exit.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for config watcher to stop: %w", ctx.Err())
	}
}
