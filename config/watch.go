package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// Watch reloads the config at path whenever it changes on disk and hands every
// successfully validated config to onChange. A config that fails to load is
// logged and the previous one stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file instead of writing it, so watch the directory
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory '%s': %w", dir, err)
	}
	target := filepath.Clean(path)

	reload := func() {
		conf, err := Read(path)
		if err != nil {
			slog.Warn("config reload failed, keeping previous config", "path", path, "error", err)
			return
		}
		slog.Info("config reloaded", "path", path, "sources", len(conf.Sources))
		onChange(conf)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
