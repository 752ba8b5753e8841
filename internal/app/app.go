package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/altafino/docflow/internal/config"
	"github.com/altafino/docflow/internal/scheduler"
	"github.com/altafino/docflow/internal/types"
)

// App runs scheduled jobs until stopped, following configuration changes.
type App struct {
	logger    *slog.Logger
	runner    *Runner
	scheduler *scheduler.Scheduler
	configDir string
	configID  string
	watcher   *config.ConfigWatcher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates the service for every enabled job, or only configID when set.
// The configurations must already be loaded.
func New(logger *slog.Logger, runner *Runner, configDir, configID string) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		logger:    logger,
		runner:    runner,
		configDir: configDir,
		configID:  configID,
		ctx:       ctx,
		cancel:    cancel,
	}
	app.scheduler = scheduler.NewScheduler(logger, app.runJob)

	if _, err := app.configs(); err != nil {
		cancel()
		return nil, err
	}
	return app, nil
}

func (a *App) configs() ([]*types.Config, error) {
	if a.configID != "" {
		cfg, err := config.GetConfig(a.configID)
		if err != nil {
			return nil, fmt.Errorf("failed to get config %s: %w", a.configID, err)
		}
		return []*types.Config{cfg}, nil
	}
	return config.GetEnabledConfigs(), nil
}

func (a *App) runJob(cfg *types.Config) {
	summary, err := a.runner.Run(a.ctx, cfg)
	if err != nil {
		a.logger.Error("scheduled job failed", "config_id", cfg.Meta.ID, "error", err)
		return
	}
	if summary != nil {
		a.logger.Info("scheduled job finished",
			"config_id", cfg.Meta.ID,
			"run_id", summary.RunID,
			"state", summary.State,
			"processed", summary.Counts.Processed,
			"skipped", summary.Counts.Skipped,
			"errored", summary.Counts.Errored,
		)
	}
}

// Start starts all application services
func (a *App) Start() error {
	watcher, err := config.StartWatcher(a.configDir, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	a.watcher = watcher

	a.scheduler.Start()

	configs, err := a.configs()
	if err != nil {
		return err
	}
	a.sync(configs)

	a.wg.Add(1)
	go a.watchConfigs()
	return nil
}

// Stop cancels running jobs and stops the scheduler and watcher.
func (a *App) Stop() {
	a.cancel()
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("failed to stop config watcher", "error", err)
		}
	}
	a.scheduler.Stop()
	a.wg.Wait()
}

// sync schedules configs and drops jobs that are gone or disabled.
func (a *App) sync(configs []*types.Config) {
	keep := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		keep[cfg.Meta.ID] = true
		if err := a.scheduler.UpdateJob(cfg); err != nil {
			a.logger.Error("failed to update scheduler", "error", err, "id", cfg.Meta.ID)
			continue
		}
		a.logger.Info("started services for configuration", "id", cfg.Meta.ID, "name", cfg.Meta.Name)
	}
	for _, id := range a.scheduler.JobIDs() {
		if !keep[id] {
			a.scheduler.RemoveJob(id)
		}
	}
}

func (a *App) watchConfigs() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.watcher.ReloadChan():
			a.logger.Info("reloading services due to configuration change")
			configs, err := a.configs()
			if err != nil {
				a.logger.Error("failed to get updated configs", "error", err)
				continue
			}
			a.sync(configs)
		}
	}
}
