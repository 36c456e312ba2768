// Package watcher reloads the dataset file when it changes on disk, with
// debouncing and optional automatic retraining.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/bundle"
	"github.com/hyperjump/fransearch/internal/metrics"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Reloader re-reads the dataset file and reports whether it changed.
type Reloader interface {
	Reload() (bool, error)
	Version() int64
}

// Retrainer rebuilds the search bundle.
type Retrainer interface {
	Retrain(ctx context.Context) (*bundle.Bundle, error)
}

// Watcher watches the directory holding the dataset file and reloads the
// store after writes settle. The store's own writes reload to an identical
// fingerprint and are ignored.
type Watcher struct {
	path      string
	store     Reloader
	retrainer Retrainer
	debounce  time.Duration
	onReload  func(changed bool, err error)
	logger    *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
	started bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = utils.OrNop(l) }
}

// WithDebounce sets how long writes must settle before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithAutoRetrain retrains after every reload that changed the data.
func WithAutoRetrain(r Retrainer) WatcherOption {
	return func(w *Watcher) { w.retrainer = r }
}

// OnReload is called after each debounced reload attempt.
func OnReload(fn func(changed bool, err error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for the dataset file at path.
func NewWatcher(path string, store Reloader, opts ...WatcherOption) *Watcher {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w := &Watcher{
		path:     filepath.Clean(abs),
		store:    store,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Start starts watching. It runs until ctx is cancelled or Stop is called.
// A stopped watcher can be started again.
func (w *Watcher) Start(ctx context.Context) error {
	_, err := w.start(ctx)
	return err
}

// start returns the done channel of the running session.
func (w *Watcher) start(ctx context.Context) (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return w.done, nil
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.watcher = fw
	w.done = make(chan struct{})
	w.started = true
	w.logger.Info("watching dataset file", zap.String("path", w.path), zap.Duration("debounce", w.debounce))
	go w.run(ctx, fw, w.done)
	return w.done, nil
}

// Serve runs the watcher until ctx is cancelled or Stop is called. It
// satisfies suture.Service, which may call it again after a return.
func (w *Watcher) Serve(ctx context.Context) error {
	done, err := w.start(ctx)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case <-done:
		return ctx.Err()
	}
}

func (w *Watcher) String() string { return "dataset-watcher" }

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
		w.schedule(ctx)
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) reload(ctx context.Context) {
	changed, err := w.store.Reload()
	switch {
	case err != nil:
		w.logger.Warn("dataset reload failed, keeping previous snapshot", zap.String("path", w.path), zap.Error(err))
	case changed:
		version := w.store.Version()
		metrics.DatasetVersion.Set(float64(version))
		w.logger.Info("dataset reloaded", zap.String("path", w.path), zap.Int64("version", version))
	}
	if w.onReload != nil {
		w.onReload(changed, err)
	}
	if err != nil || !changed || w.retrainer == nil || ctx.Err() != nil {
		return
	}
	if _, err := w.retrainer.Retrain(ctx); err != nil {
		if errors.Is(err, model.ErrRetrainInProgress) {
			w.logger.Info("auto retrain skipped, retrain already in progress")
			return
		}
		w.logger.Warn("auto retrain failed", zap.Error(err))
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	close(w.done)
	w.mu.Unlock()
}
