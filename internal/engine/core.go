package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine is the capability set shared by the extractor and the classifier.
type Engine[C any, R any] interface {
	Configure(cfg C) error
	Run(ctx context.Context) (*Result[R], error)
	Cancel()
	Pause()
	Resume()
	State() State
	SetCallbacks(cb Callbacks[R])
}

// Core carries the state, token and callbacks every engine needs. Engines
// embed a *Core and drive a run through the *Run returned by Begin.
type Core[R any] struct {
	name   string
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	token     *Token
	callbacks Callbacks[R]
}

// NewCore creates an idle core. name identifies the engine in logs.
func NewCore[R any](name string, logger *slog.Logger) *Core[R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core[R]{
		name:   name,
		logger: logger.With("engine", name),
	}
}

func (c *Core[R]) Name() string { return c.name }

func (c *Core[R]) Logger() *slog.Logger { return c.logger }

func (c *Core[R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetCallbacks replaces the callbacks used by subsequent runs.
func (c *Core[R]) SetCallbacks(cb Callbacks[R]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// Cancel requests cancellation of the active run. It is a no-op when no run
// is active.
func (c *Core[R]) Cancel() {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != nil {
		token.Cancel()
	}
}

func (c *Core[R]) Pause() {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != nil {
		token.Pause()
	}
}

func (c *Core[R]) Resume() {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != nil {
		token.Resume()
	}
}

// Begin moves the core to RUNNING and returns the bookkeeping handle for
// the new run.
func (c *Core[R]) Begin(ctx context.Context) (*Run[R], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !canTransition(c.state, StateRunning) {
		return nil, ErrAlreadyRunning
	}
	c.state = StateRunning
	c.token = NewToken(ctx)

	run := &Run[R]{
		core:      c,
		callbacks: c.callbacks,
		token:     c.token,
		id:        uuid.New().String(),
		started:   time.Now(),
	}
	c.logger.Info("run started", "run_id", run.id)
	return run, nil
}

func (c *Core[R]) end(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if canTransition(c.state, state) {
		c.state = state
	}
	if c.token != nil {
		c.token.release()
		c.token = nil
	}
}

// Run accumulates the records, counts and log lines of one engine run and
// forwards every notification to the callbacks captured at Begin.
type Run[R any] struct {
	core      *Core[R]
	callbacks Callbacks[R]
	token     *Token
	id        string
	started   time.Time

	phase   Phase
	records []R
	counts  Counts
	logs    []LogEntry
	journal *Journal
}

func (r *Run[R]) ID() string { return r.id }

func (r *Run[R]) Token() *Token { return r.token }

func (r *Run[R]) Context() context.Context { return r.token.Context() }

// Checkpoint honours pause and cancel requests.
func (r *Run[R]) Checkpoint() error { return r.token.Checkpoint() }

func (r *Run[R]) Phase() Phase { return r.phase }

// EnterPhase records and announces a phase change.
func (r *Run[R]) EnterPhase(p Phase) {
	r.phase = p
	r.core.logger.Debug("phase changed", "run_id", r.id, "phase", p)
	if r.callbacks.OnPhaseChange != nil {
		r.callbacks.OnPhaseChange(p)
	}
}

func (r *Run[R]) Progress(current, total int, detail string) {
	if r.callbacks.OnProgress != nil {
		r.callbacks.OnProgress(ProgressEvent{
			Phase:   r.phase,
			Current: current,
			Total:   total,
			Detail:  detail,
		})
	}
}

func (r *Run[R]) Infof(format string, args ...any) {
	r.emit(SeverityInfo, fmt.Sprintf(format, args...))
}

func (r *Run[R]) Warnf(format string, args ...any) {
	r.emit(SeverityWarn, fmt.Sprintf(format, args...))
}

func (r *Run[R]) Errorf(format string, args ...any) {
	r.emit(SeverityError, fmt.Sprintf(format, args...))
}

func (r *Run[R]) emit(sev Severity, msg string) {
	entry := LogEntry{Severity: sev, Time: time.Now(), Message: msg}
	r.logs = append(r.logs, entry)

	level := slog.LevelInfo
	switch sev {
	case SeverityWarn:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	r.core.logger.Log(context.Background(), level, msg, "run_id", r.id, "phase", r.phase)

	if r.journal != nil {
		r.journal.Write(entry)
	}
	if r.callbacks.OnLog != nil {
		r.callbacks.OnLog(entry)
	}
}

// Add appends a record and counts it.
func (r *Run[R]) Add(rec R, t Tally) {
	r.records = append(r.records, rec)
	r.counts.add(t)
}

// Count tallies an item that produces no record.
func (r *Run[R]) Count(t Tally) {
	r.counts.add(t)
}

func (r *Run[R]) Counts() Counts { return r.counts }

// Records returns a copy of the records gathered so far.
func (r *Run[R]) Records() []R {
	return append([]R(nil), r.records...)
}

// UseJournal mirrors every subsequent log line into j. The journal is closed
// by Finish.
func (r *Run[R]) UseJournal(j *Journal) {
	r.journal = j
}

// Finish settles the terminal state, notifies OnComplete and returns the
// result. The error is non-nil only when the run failed.
func (r *Run[R]) Finish(err error) (*Result[R], error) {
	state := StateCompleted
	switch {
	case err != nil && !errors.Is(err, ErrCancelled):
		state = StateFailed
		r.Errorf("run aborted: %v", err)
	case errors.Is(err, ErrCancelled) || r.token.Cancelled():
		state = StateCancelled
		err = nil
		r.Warnf("run cancelled after %d item(s)", r.counts.Total())
	}

	elapsed := time.Since(r.started)
	result := &Result[R]{
		RunID:     r.id,
		Engine:    r.core.name,
		State:     state,
		Records:   r.Records(),
		Counts:    r.counts,
		StartedAt: r.started,
		Elapsed:   elapsed,
		Logs:      append([]LogEntry(nil), r.logs...),
		Err:       err,
	}

	if r.journal != nil {
		if jerr := r.journal.Close(result.State, result.Counts, elapsed); jerr != nil {
			r.core.logger.Warn("failed to close run log", "run_id", r.id, "error", jerr)
		}
		r.journal = nil
	}

	r.core.end(state)
	r.core.logger.Info("run finished",
		"run_id", r.id,
		"state", state,
		"processed", r.counts.Processed,
		"skipped", r.counts.Skipped,
		"errored", r.counts.Errored,
		"elapsed", elapsed,
	)

	if r.callbacks.OnComplete != nil {
		r.callbacks.OnComplete(result)
	}
	return result, err
}
