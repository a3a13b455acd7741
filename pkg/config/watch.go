// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file on change and calls onReload with each
// valid new configuration.
//
// # Description
//
// Editors replace files rather than writing in place, so both Write and
// Create events trigger a reload. Events are debounced; a reload that
// fails validation is logged and skipped, keeping the last good config in
// effect. Watch blocks until ctx is done.
//
// # Inputs
//
//   - ctx: Cancels the watch.
//   - path: Config file to watch. Must be non-empty.
//   - onReload: Receives each successfully reloaded Config. Called from
//     the watch goroutine.
func Watch(ctx context.Context, path string, onReload func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				cfg, err := Load(path)
				if err != nil {
					slog.Warn("Config reload failed, keeping previous config",
						"path", path, "error", err)
					return
				}
				slog.Info("Config reloaded", "path", path)
				onReload(cfg)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}
