// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the editor's write-then-rename burst into one
// reload.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and
// delivers the validated result to a callback. A file that becomes
// invalid keeps the previous configuration in effect.
type Watcher struct {
	path     string
	onChange func(*Config)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for config changes. The containing directory is
// watched rather than the file itself: atomic saves replace the inode.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.processEvents()
	go w.processPending()
	return nil
}

// processEvents records events for the watched file.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// processPending reloads once the debounce window has passed.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= watchDebounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if !due {
				continue
			}
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				// Invalid edits keep the previous config in effect.
				continue
			}
			w.onChange(cfg)
		}
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}
