// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// watchDebounce collapses editor write bursts into one reload.
const watchDebounce = 300 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	onReload func(*Config)
	onError  func(error)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

// Watch starts watching path and calls onReload with each successfully
// loaded and validated config. Invalid intermediate states (for example a
// half-written file) go to onError and the previous config stays in effect.
// onError may be nil.
func Watch(path string, onReload func(*Config), onError func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     path,
		onReload: onReload,
		onError:  onError,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}
	go w.loop()
	return w, nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors save via rename; re-add the path so the new inode
			// keeps being watched.
			if ev.Op&fsnotify.Rename != 0 {
				w.watcher.Add(w.path)
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// scheduleReload arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, func() {
		select {
		case <-w.ctx.Done():
			return
		default:
		}
		cfg, err := LoadFromPath(w.path)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return
		}
		w.onReload(cfg)
	})
}
