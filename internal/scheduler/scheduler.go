package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/types"
	"github.com/go-co-op/gocron"
)

var units = map[string]func(*gocron.Scheduler) *gocron.Scheduler{
	"minute": (*gocron.Scheduler).Minutes,
	"hour":   (*gocron.Scheduler).Hours,
	"day":    (*gocron.Scheduler).Days,
	"week":   (*gocron.Scheduler).Weeks,
	"month":  func(s *gocron.Scheduler) *gocron.Scheduler { return s.Months() },
}

// RunFunc executes one job. It is called on a scheduler goroutine.
type RunFunc func(cfg *types.Config)

type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	run       RunFunc
	jobs      map[string]*gocron.Job
	mu        sync.RWMutex
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance
func NewScheduler(logger *slog.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
		run:       run,
		jobs:      make(map[string]*gocron.Job),
		now:       time.Now,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// UpdateJob replaces the schedule of cfg. Jobs with scheduling disabled or
// a stop time in the past are only removed.
func (s *Scheduler) UpdateJob(cfg *types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(cfg.Meta.ID)

	sc := cfg.Scheduling
	if !sc.Enabled {
		s.logger.Info("scheduling disabled for configuration", "id", cfg.Meta.ID)
		return nil
	}

	var stopAt time.Time
	if sc.StopAt != "" {
		var err error
		if stopAt, err = time.Parse(time.RFC3339, sc.StopAt); err != nil {
			return fmt.Errorf("invalid stop time: %w", err)
		}
		if stopAt.Before(s.now().UTC()) {
			s.logger.Warn("skipping job schedule - stop time is in the past",
				"id", cfg.Meta.ID,
				"stop_at", sc.StopAt,
			)
			return nil
		}
	}

	id := cfg.Meta.ID
	jobFunc := func() {
		if !stopAt.IsZero() && s.now().UTC().After(stopAt) {
			s.logger.Info("stop time reached, removing job", "id", id)
			go s.RemoveJob(id)
			return
		}
		s.logger.Info("executing scheduled job", "config_id", id)
		s.run(cfg)
	}

	unit, ok := units[sc.FrequencyEvery]
	if !ok {
		return fmt.Errorf("invalid frequency: %s", sc.FrequencyEvery)
	}
	job := unit(s.scheduler.Every(sc.FrequencyAmount))

	// Without start_now the first run waits for start_at.
	if !sc.StartNow {
		startAt, err := time.Parse(time.RFC3339, sc.StartAt)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		job = job.StartAt(startAt)
	}

	scheduled, err := job.SingletonMode().Tag(id).Do(jobFunc)
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	s.jobs[id] = scheduled

	s.logger.Info("scheduled job updated",
		"id", id,
		"frequency", fmt.Sprintf("every %d %s", sc.FrequencyAmount, sc.FrequencyEvery),
		"start_now", sc.StartNow,
		"start_at", sc.StartAt,
		"stop_at", sc.StopAt,
	)
	return nil
}

// RemoveJob removes a job for a given configuration ID
func (s *Scheduler) RemoveJob(configID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeLocked(configID) {
		s.logger.Info("removed scheduled job", "id", configID)
	}
}

func (s *Scheduler) removeLocked(configID string) bool {
	job, exists := s.jobs[configID]
	if !exists {
		return false
	}
	s.scheduler.RemoveByReference(job)
	delete(s.jobs, configID)
	return true
}

// JobIDs lists the scheduled configuration IDs.
func (s *Scheduler) JobIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextRun reports when a job fires next.
func (s *Scheduler) NextRun(configID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[configID]
	if !ok {
		return time.Time{}, false
	}
	return job.NextRun(), true
}
