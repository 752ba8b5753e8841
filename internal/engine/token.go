package engine

import (
	"context"
	"sync"
)

// Token is the per-run cancellation and pause handle. It is created by
// Core.Begin and handed to everything the run calls.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewToken derives a token from parent. Cancelling parent cancels the token.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	return &Token{ctx: ctx, cancel: cancel}
}

// Context is cancelled when the token is.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cancel is idempotent and also releases a paused run.
func (t *Token) Cancel() {
	t.cancel()
}

func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Pause holds the run at its next checkpoint until Resume or Cancel.
func (t *Token) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		t.paused = true
		t.resume = make(chan struct{})
	}
}

func (t *Token) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.paused = false
		close(t.resume)
	}
}

func (t *Token) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Checkpoint blocks while the token is paused and returns ErrCancelled once
// cancellation has been requested.
func (t *Token) Checkpoint() error {
	for {
		t.mu.Lock()
		paused, resume := t.paused, t.resume
		t.mu.Unlock()
		if !paused {
			break
		}
		select {
		case <-resume:
		case <-t.ctx.Done():
			return ErrCancelled
		}
	}
	if t.ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

// release frees the context resources once the run is over.
func (t *Token) release() {
	t.cancel()
}
