package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/promptlens/internal/observability"
)

// DefaultWatchDebounce coalesces bursts of writes from editors.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch reloads the file at path whenever it changes and passes each config
// that loads and validates to onChange. Invalid revisions are logged and
// skipped so the caller keeps its last good config. Watch blocks until ctx is
// done.
//
// The parent directory is watched rather than the file so atomic
// rename-over saves are seen.
func Watch(ctx context.Context, path string, logger *observability.Logger, onChange func(*Config)) error {
	return watch(ctx, path, DefaultWatchDebounce, logger, onChange)
}

func watch(ctx context.Context, path string, debounce time.Duration, logger *observability.Logger, onChange func(*Config)) error {
	if onChange == nil {
		return fmt.Errorf("onChange is required")
	}
	if logger == nil {
		logger = observability.NewDiscardLogger()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	var mu sync.Mutex
	var timer *time.Timer
	reload := func() {
		cfg, err := Load(absPath)
		if err != nil {
			logger.Warn(ctx, "config reload failed", "path", absPath, "error", err)
			return
		}
		logger.Info(ctx, "config reloaded", "path", absPath, "experiments", len(cfg.Experiments))
		onChange(cfg)
	}
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != absPath {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "config watch error", "error", err)
		}
	}
}
