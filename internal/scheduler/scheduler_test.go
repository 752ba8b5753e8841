package scheduler

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/altafino/docflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(id string) *types.Config {
	cfg := &types.Config{}
	cfg.Meta.ID = id
	cfg.Scheduling.Enabled = true
	cfg.Scheduling.FrequencyEvery = "hour"
	cfg.Scheduling.FrequencyAmount = 1
	cfg.Scheduling.StartNow = true
	return cfg
}

func newScheduler(runs *atomic.Int32) *Scheduler {
	return NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)), func(*types.Config) {
		runs.Add(1)
	})
}

func TestUpdateAndRemoveJobs(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(&runs)

	require.NoError(t, s.UpdateJob(job("facturas")))
	require.NoError(t, s.UpdateJob(job("contratos")))
	assert.Equal(t, []string{"contratos", "facturas"}, s.JobIDs())

	// Updating replaces instead of duplicating.
	require.NoError(t, s.UpdateJob(job("facturas")))
	assert.Len(t, s.JobIDs(), 2)

	disabled := job("contratos")
	disabled.Scheduling.Enabled = false
	require.NoError(t, s.UpdateJob(disabled))
	assert.Equal(t, []string{"facturas"}, s.JobIDs())

	s.RemoveJob("facturas")
	assert.Empty(t, s.JobIDs())
}

func TestStopTimeInThePast(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(&runs)

	cfg := job("facturas")
	cfg.Scheduling.StopAt = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	require.NoError(t, s.UpdateJob(cfg))
	assert.Empty(t, s.JobIDs())
}

func TestStartAtDelaysFirstRun(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(&runs)

	cfg := job("facturas")
	cfg.Scheduling.StartNow = false
	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	cfg.Scheduling.StartAt = start.Format(time.RFC3339)
	require.NoError(t, s.UpdateJob(cfg))

	s.Start()
	defer s.Stop()

	next, ok := s.NextRun("facturas")
	require.True(t, ok)
	assert.WithinDuration(t, start, next, time.Second)
	assert.Zero(t, runs.Load())
}

func TestStartNowRunsImmediately(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(&runs)
	require.NoError(t, s.UpdateJob(job("facturas")))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestInvalidFrequency(t *testing.T) {
	var runs atomic.Int32
	s := newScheduler(&runs)

	cfg := job("facturas")
	cfg.Scheduling.FrequencyEvery = "fortnight"
	assert.Error(t, s.UpdateJob(cfg))
	assert.Empty(t, s.JobIDs())
}
