package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateRunning, true},
		{StateRunning, StateRunning, false},
		{StateRunning, StateCompleted, true},
		{StateRunning, StateCancelled, true},
		{StateRunning, StateFailed, true},
		{StateIdle, StateCompleted, false},
		{StateCompleted, StateRunning, true},
		{StateFailed, StateRunning, true},
		{StateCancelled, StateFailed, false},
		{StateRunning, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}

func TestBeginRejectsSecondRun(t *testing.T) {
	core := NewCore[string]("test", nil)

	run, err := core.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, core.State())

	_, err = core.Begin(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	_, err = run.Finish(nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, core.State())

	_, err = core.Begin(context.Background())
	assert.NoError(t, err)
}

func TestFinishStates(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		core := NewCore[string]("test", nil)
		run, err := core.Begin(context.Background())
		require.NoError(t, err)
		run.Add("a", TallyProcessed)
		run.Add("b", TallySkipped)
		run.Count(TallySkipped)

		res, err := run.Finish(nil)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, res.State)
		assert.Equal(t, []string{"a", "b"}, res.Records)
		assert.Equal(t, Counts{Processed: 1, Skipped: 2}, res.Counts)
		assert.NotEmpty(t, res.RunID)
	})

	t.Run("cancelled via token", func(t *testing.T) {
		core := NewCore[string]("test", nil)
		run, err := core.Begin(context.Background())
		require.NoError(t, err)
		run.Add("a", TallyProcessed)
		core.Cancel()

		res, err := run.Finish(nil)
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, res.State)
		assert.Len(t, res.Records, 1)
		assert.Equal(t, StateCancelled, core.State())
	})

	t.Run("cancelled via error", func(t *testing.T) {
		core := NewCore[string]("test", nil)
		run, err := core.Begin(context.Background())
		require.NoError(t, err)

		res, err := run.Finish(ErrCancelled)
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, res.State)
		assert.NoError(t, res.Err)
	})

	t.Run("failed", func(t *testing.T) {
		core := NewCore[string]("test", nil)
		run, err := core.Begin(context.Background())
		require.NoError(t, err)
		run.Add("a", TallyProcessed)

		cause := Structural("write", errors.New("read-only file system"))
		res, err := run.Finish(cause)
		require.Error(t, err)
		assert.True(t, IsStructural(err))
		assert.Equal(t, StateFailed, res.State)
		assert.Len(t, res.Records, 1)
		last := res.Logs[len(res.Logs)-1]
		assert.Equal(t, SeverityError, last.Severity)
	})
}

func TestCallbacksFireInOrder(t *testing.T) {
	core := NewCore[string]("test", nil)
	var seen []string
	core.SetCallbacks(Callbacks[string]{
		OnPhaseChange: func(p Phase) { seen = append(seen, "phase:"+string(p)) },
		OnProgress:    func(e ProgressEvent) { seen = append(seen, "progress:"+e.Detail) },
		OnLog:         func(e LogEntry) { seen = append(seen, "log:"+e.Message) },
		OnComplete:    func(r *Result[string]) { seen = append(seen, "complete:"+r.State.String()) },
	})

	run, err := core.Begin(context.Background())
	require.NoError(t, err)
	run.EnterPhase("ONE")
	run.Progress(1, 2, "x")
	run.Infof("hello %d", 1)
	_, err = run.Finish(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"phase:ONE",
		"progress:x",
		"log:hello 1",
		"complete:COMPLETED",
	}, seen)
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	core := NewCore[string]("test", nil)
	core.Cancel()
	core.Pause()
	core.Resume()
	assert.Equal(t, StateIdle, core.State())

	run, err := core.Begin(context.Background())
	require.NoError(t, err)
	assert.NoError(t, run.Checkpoint())
	_, _ = run.Finish(nil)

	core.Cancel()
	assert.Equal(t, StateCompleted, core.State())
}

func TestTokenPauseResume(t *testing.T) {
	token := NewToken(context.Background())
	token.Pause()
	assert.True(t, token.Paused())

	done := make(chan error, 1)
	go func() { done <- token.Checkpoint() }()

	select {
	case <-done:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	token.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not return after resume")
	}
}

func TestTokenCancelReleasesPause(t *testing.T) {
	token := NewToken(context.Background())
	token.Pause()

	done := make(chan error, 1)
	go func() { done <- token.Checkpoint() }()
	token.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not return after cancel")
	}
	token.Cancel()
	assert.True(t, token.Cancelled())
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressEvent{Current: 3}.Percent())
	assert.Equal(t, 50, ProgressEvent{Current: 1, Total: 2}.Percent())
	assert.Equal(t, 100, ProgressEvent{Current: 5, Total: 4}.Percent())
}

func TestJournalWritesSummary(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0o755))

	core := NewCore[string]("test", nil)
	run, err := core.Begin(context.Background())
	require.NoError(t, err)

	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)
	j, err := OpenJournal(fs, "/out", "extraction", now, "source: Inbox")
	require.NoError(t, err)
	assert.Equal(t, "/out/log_extraction_2024-03-05_14.07.09.log", j.Path())
	assert.True(t, IsJournal("log_extraction_2024-03-05_14.07.09.log"))

	run.UseJournal(j)
	run.Warnf("something odd")
	run.Add("a", TallyProcessed)
	_, err = run.Finish(nil)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, j.Path())
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "source: Inbox")
	assert.Contains(t, text, "[WARN] something odd")
	assert.Contains(t, text, "SUMMARY")
	assert.Contains(t, text, "state:     COMPLETED")
	assert.True(t, strings.Contains(text, "processed: 1"))
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := Invalid("destination_dir", "must differ from source")
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "destination_dir", ce.Field)
	assert.Contains(t, err.Error(), "must differ from source")
}
