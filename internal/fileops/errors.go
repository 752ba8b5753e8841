package fileops

import (
	"errors"
	"os"
	"syscall"

	"github.com/altafino/docflow/internal/engine"
)

// Classify sorts a raw I/O error into the engine taxonomy: structural errors
// abort the run, recoverable ones are retried and anything else is a
// per-record failure returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if engine.IsStructural(err) || engine.IsRecoverable(err) || errors.Is(err, engine.ErrCancelled) {
		return err
	}

	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT):
		return engine.Structural(op, err)
	case errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.ETXTBSY),
		errors.Is(err, syscall.EINTR),
		os.IsTimeout(err):
		return &engine.RecoverableIOError{Op: op, Err: err}
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return &engine.RecoverableIOError{Op: op, Err: err}
	}
	return err
}

// destinationError marks a failure writing into the destination directory
// as opposed to reading the source.
type destinationError struct{ err error }

func (e *destinationError) Error() string { return e.err.Error() }
func (e *destinationError) Unwrap() error { return e.err }

// classifyDestination treats every non-recoverable destination failure as
// structural: the destination is unwritable.
func classifyDestination(op string, err error) error {
	err = Classify(op, err)
	if engine.IsRecoverable(err) || errors.Is(err, engine.ErrCancelled) {
		return err
	}
	return engine.Structural(op, err)
}
