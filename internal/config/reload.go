// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-reads the config file on change and hands the new config to
// apply. Encoder settings are fixed for the process lifetime, so callers are
// expected to act only on the live-tunable fields (the log level).
type Watcher struct {
	loader   *Loader
	path     string
	apply    func(AppConfig)
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	reloads int
}

// NewWatcher creates a watcher for path. apply is called with every config
// that loads and validates successfully.
func NewWatcher(path, version string, logger zerolog.Logger, apply func(AppConfig)) *Watcher {
	return &Watcher{
		loader:   NewLoader(path, version),
		path:     path,
		apply:    apply,
		logger:   logger,
		debounce: 500 * time.Millisecond,
	}
}

// Run watches until ctx is cancelled. With an empty path it returns immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		w.logger.Info().
			Str("event", "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors replace files via rename, which drops a file watch.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	w.logger.Info().
		Str("event", "config.watcher_started").
		Str("path", w.path).
		Msg("watching config file for changes")

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			w.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug().
					Str("event", "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")
				w.schedule()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().
				Err(err).
				Str("event", "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("event", "config.reload_failed").
			Msg("config reload failed, keeping current configuration")
		return
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.apply(cfg)
	w.logger.Info().
		Str("event", "config.reload_success").
		Str("log_level", cfg.LogLevel).
		Msg("configuration reloaded")
}

// Reloads returns how many reloads succeeded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}
