package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher counts modifications of the dataset file made by anyone, this
// process included. Sessions compare the count with the one they saw at load
// time and confirm with Store.ChangedOnDisk before warning the user.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes atomic.Uint64
	logger  zerolog.Logger
}

// NewWatcher watches the directory holding path. The directory is created if
// needed so a dataset that does not exist yet can still be observed.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving dataset path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:    abs,
		watcher: fw,
		logger:  logger.With().Str("component", "watcher").Str("path", abs).Logger(),
	}, nil
}

// Run consumes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				n := w.changes.Add(1)
				w.logger.Debug().Str("op", ev.Op.String()).Uint64("changes", n).Msg("dataset changed")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// Changes returns the number of observed modifications.
func (w *Watcher) Changes() uint64 {
	return w.changes.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
