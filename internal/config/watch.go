package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codepaste/typer/internal/logger"
)

const debounceInterval = 100 * time.Millisecond

// Watch reloads the .env file at path whenever it changes and hands the new
// configuration to onChange. Invalid edits are logged and skipped. Watch
// returns once the watcher is running; it stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("no .env file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go watchLoop(ctx, watcher, path, onChange)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, onChange func(*Config)) {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := watcher.Close(); err != nil {
			logger.Error("failed to close watcher", "error", err)
		}
	}()

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Reload(path)
		if err != nil {
			logger.Warn("ignoring config change", "path", path, "error", err)
			return
		}
		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Debounce rapid changes
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}
