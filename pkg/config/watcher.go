// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the Manager when its config file changes and hands the
// new configuration to OnChange. A reload that fails validation is logged
// and the previous configuration stays in effect.
type Watcher struct {
	manager  *Manager
	onChange func(Config)
	watcher  *fsnotify.Watcher

	// debounceDelay coalesces the burst of events editors emit on save.
	debounceDelay time.Duration
	logger        zerolog.Logger

	mu            sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the file source of m.
func NewWatcher(m *Manager, onChange func(Config), logger zerolog.Logger) (*Watcher, error) {
	if m.FilePath() == "" {
		return nil, errors.New("config: no config file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		manager:       m,
		onChange:      onChange,
		watcher:       watcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        logger.With().Str("component", "config.watcher").Logger(),
	}, nil
}

// Start watches until ctx is cancelled. Run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	path := w.manager.FilePath()
	dir := filepath.Dir(path)
	name := filepath.Base(path)

	// fsnotify watches directories; editors often replace the file.
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Error().Err(err).Str("dir", dir).Msg("Failed to watch config directory")
		return err
	}

	w.logger.Info().
		Str("file", path).
		Dur("debounce", w.debounceDelay).
		Msg("Started watching config file")

	defer func() {
		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
		w.logger.Info().Msg("Stopped watching config file")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().
					Str("op", ev.Op.String()).
					Str("file", ev.Name).
					Msg("Detected config file change")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	if err := w.manager.Reload(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload config, keeping previous values")
		return
	}
	w.logger.Info().Msg("Config reloaded")
	if w.onChange != nil {
		w.onChange(w.manager.Get())
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
