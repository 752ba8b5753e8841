package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads the job store whenever a yaml file in the config
// directory changes.
type ConfigWatcher struct {
	watcher    *fsnotify.Watcher
	configDir  string
	logger     *slog.Logger
	reloadChan chan struct{}
	done       chan struct{}
}

// StartWatcher watches configDir and its subdirectories.
func StartWatcher(configDir string, logger *slog.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	cw := &ConfigWatcher{
		watcher:    watcher,
		configDir:  configDir,
		logger:     logger,
		reloadChan: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	if err := filepath.Walk(configDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	go cw.watch()
	return cw, nil
}

// ReloadChan receives a value after every successful reload.
func (cw *ConfigWatcher) ReloadChan() <-chan struct{} {
	return cw.reloadChan
}

func relevant(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".yaml")
}

// settle is how long the directory has to stay quiet before a reload. Editors
// save with several events (truncate, write, rename) and the store should
// only be rebuilt once they are done.
const settle = 250 * time.Millisecond

func (cw *ConfigWatcher) watch() {
	defer close(cw.done)

	timer := time.NewTimer(settle)
	timer.Stop()
	var changed []string

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				timer.Stop()
				return
			}
			if !relevant(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			changed = append(changed, event.Name)
			timer.Reset(settle)

		case <-timer.C:
			cw.reload(changed)
			changed = changed[:0]

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				timer.Stop()
				return
			}
			cw.logger.Error("watcher error", "error", err)
		}
	}
}

func (cw *ConfigWatcher) reload(paths []string) {
	cw.logger.Info("detected configuration change", "paths", paths)

	if err := LoadConfigs(cw.configDir); err != nil {
		cw.logger.Error("failed to reload configurations, keeping the previous ones", "error", err)
		return
	}
	cw.logger.Info("configurations reloaded", "count", len(ListConfigs()))

	select {
	case cw.reloadChan <- struct{}{}:
	default:
	}
}

// Stop closes the watcher and waits for the event loop to exit.
func (cw *ConfigWatcher) Stop() error {
	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	<-cw.done
	return nil
}
