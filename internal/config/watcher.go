package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to finish before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes and hands the fresh,
// validated config to a callback. The parent directory is watched so that
// editors which replace the file on save are handled.
type Watcher struct {
	path     string
	debounce time.Duration
	load     func(path string) (Config, error)
	onReload func(Config)
	log      *log.Entry
}

// NewWatcher creates a watcher for path. load is usually LoadWithEnv.
func NewWatcher(path string, load func(string) (Config, error), onReload func(Config), logger *log.Entry) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		load:     load,
		onReload: onReload,
		log:      logger,
	}
}

// SetDebounce overrides DefaultDebounce.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.WithField("path", w.path).Info("watching config")

	var pending <-chan time.Time
	var t *time.Timer
	for {
		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if t != nil {
				t.Stop()
			}
			t = time.NewTimer(w.debounce)
			pending = t.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.log.WithError(err).Warn("config reload failed, keeping current config")
		return
	}
	warnings, err := cfg.Validate()
	if err != nil {
		w.log.WithError(err).Warn("reloaded config is invalid, keeping current config")
		return
	}
	for _, msg := range warnings {
		w.log.Warn(msg)
	}
	w.log.Info("config reloaded")
	w.onReload(cfg)
}
