// Package worker runs an engine off the presentation goroutine and relays
// its notifications back through a Dispatcher.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/altafino/docflow/internal/engine"
)

var (
	// ErrBusy is returned by Start while a run is still active.
	ErrBusy = errors.New("a run is already in progress")
	// ErrNotStarted is returned by Wait before the first Start.
	ErrNotStarted = errors.New("no run has been started")
)

const eventBuffer = 64

// Listener receives the notifications of a run on the dispatcher's
// goroutine.
type Listener[R any] engine.Callbacks[R]

type eventKind int

const (
	eventProgress eventKind = iota
	eventLog
	eventPhase
	eventComplete
	eventFinished
)

type event[R any] struct {
	kind     eventKind
	progress engine.ProgressEvent
	log      engine.LogEntry
	phase    engine.Phase
	result   *engine.Result[R]
	err      error
}

type subscription[R any] struct {
	id int
	l  Listener[R]
}

// Adapter owns one engine instance and runs at most one of its runs at a
// time.
type Adapter[C any, R any] struct {
	engine   engine.Engine[C, R]
	dispatch Dispatcher
	logger   *slog.Logger

	mu        sync.Mutex
	busy      bool
	started   bool
	done      chan struct{}
	runCancel context.CancelFunc
	result    *engine.Result[R]
	err       error
	listeners []subscription[R]
	nextID    int
}

func New[C any, R any](e engine.Engine[C, R], d Dispatcher, logger *slog.Logger) *Adapter[C, R] {
	if d == nil {
		d = Direct
	}
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Adapter[C, R]{engine: e, dispatch: d, logger: logger, done: done}
}

// Subscribe registers l and returns a function that removes it.
func (a *Adapter[C, R]) Subscribe(l Listener[R]) (unsubscribe func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, subscription[R]{id: id, l: l})

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, s := range a.listeners {
				if s.id == id {
					a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Start configures the engine and runs it in the background. A
// configuration error is returned here and no run starts.
func (a *Adapter[C, R]) Start(ctx context.Context, cfg C) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return ErrBusy
	}
	if err := a.engine.Configure(cfg); err != nil {
		return err
	}

	events := make(chan event[R], eventBuffer)
	a.engine.SetCallbacks(engine.Callbacks[R]{
		OnProgress:    func(p engine.ProgressEvent) { events <- event[R]{kind: eventProgress, progress: p} },
		OnLog:         func(e engine.LogEntry) { events <- event[R]{kind: eventLog, log: e} },
		OnPhaseChange: func(p engine.Phase) { events <- event[R]{kind: eventPhase, phase: p} },
		OnComplete:    func(r *engine.Result[R]) { events <- event[R]{kind: eventComplete, result: r} },
	})

	a.busy = true
	a.started = true
	a.done = make(chan struct{})
	a.result, a.err = nil, nil
	done := a.done
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	go func() {
		res, err := a.engine.Run(runCtx)
		cancel()
		events <- event[R]{kind: eventFinished, result: res, err: err}
		close(events)
	}()
	go a.pump(events, done)
	return nil
}

// pump hands every event to the dispatcher in emission order.
func (a *Adapter[C, R]) pump(events <-chan event[R], done chan struct{}) {
	for ev := range events {
		ev := ev
		if ev.kind == eventFinished {
			a.dispatch.Dispatch(func() { a.finish(done, ev.result, ev.err) })
			continue
		}
		a.dispatch.Dispatch(func() { a.deliver(ev) })
	}
}

func (a *Adapter[C, R]) deliver(ev event[R]) {
	a.mu.Lock()
	subs := append([]subscription[R](nil), a.listeners...)
	a.mu.Unlock()

	for _, s := range subs {
		switch ev.kind {
		case eventProgress:
			if s.l.OnProgress != nil {
				s.l.OnProgress(ev.progress)
			}
		case eventLog:
			if s.l.OnLog != nil {
				s.l.OnLog(ev.log)
			}
		case eventPhase:
			if s.l.OnPhaseChange != nil {
				s.l.OnPhaseChange(ev.phase)
			}
		case eventComplete:
			if s.l.OnComplete != nil {
				s.l.OnComplete(ev.result)
			}
		}
	}
}

func (a *Adapter[C, R]) finish(done chan struct{}, res *engine.Result[R], err error) {
	a.mu.Lock()
	a.busy = false
	a.runCancel = nil
	a.result, a.err = res, err
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("run ended with error", "error", err)
	} else if res != nil {
		a.logger.Debug("run ended", "run_id", res.RunID, "state", res.State)
	}
	close(done)
}

// RequestCancel asks the active run to stop at its next checkpoint. A
// request made before the engine has begun still reaches it through the
// run's context.
func (a *Adapter[C, R]) RequestCancel() {
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.engine.Cancel()
}

func (a *Adapter[C, R]) Pause() { a.engine.Pause() }

func (a *Adapter[C, R]) Resume() { a.engine.Resume() }

// Busy reports whether a run is active or its completion is still being
// dispatched.
func (a *Adapter[C, R]) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Done is closed once the latest run's completion has been dispatched.
func (a *Adapter[C, R]) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Wait blocks until the latest run has finished and returns its outcome.
func (a *Adapter[C, R]) Wait(ctx context.Context) (*engine.Result[R], error) {
	a.mu.Lock()
	started, done := a.started, a.done
	a.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.err
}
