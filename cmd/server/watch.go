package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/plugin"
)

// debounceDelay coalesces the burst of events an editor emits per save.
const debounceDelay = 500 * time.Millisecond

// watchConfig watches the config file and applies plugin order and scope
// changes without a restart. Other settings still need a restart; a reload
// that fails validation keeps the running configuration.
func watchConfig(ctx context.Context, path string, registry *plugin.Registry, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace the file on save
	// and the watch on the old inode would go stale.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	var debounceC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
				debounceC = debounce.C
			} else {
				debounce.Reset(debounceDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		case <-debounceC:
			debounce = nil
			debounceC = nil
			reloadConfig(path, registry, logger)
		}
	}
}

func reloadConfig(path string, registry *plugin.Registry, logger *zap.Logger) {
	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Error("config reload failed", zap.Error(err))
		return
	}
	if err := registry.SetOrder(cfg.Plugins.Order); err != nil {
		logger.Error("config reload failed", zap.Error(err))
		return
	}
	for name, scope := range cfg.Plugins.Scopes {
		registry.SetScope(name, scope)
	}
	logger.Info("config reloaded",
		zap.Strings("pluginOrder", cfg.Plugins.Order))
}
