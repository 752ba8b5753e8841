package worker

import "sync"

// Dispatcher runs notification functions on the goroutine that owns the
// presentation. Functions must run in the order they were dispatched and
// Dispatch must not block.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Direct runs every function immediately on the adapter's pump goroutine.
// It suits headless callers that have no presentation goroutine.
var Direct Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// Loop is a queue drained by whichever goroutine calls Run.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

func (l *Loop) Dispatch(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes queued functions until stop is closed, then drains what is
// left and returns.
func (l *Loop) Run(stop <-chan struct{}) {
	for {
		l.drain()
		select {
		case <-l.wake:
		case <-stop:
			l.drain()
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}
