package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks a run stopped at a cancellation checkpoint. It is not
	// a failure.
	ErrCancelled = errors.New("run cancelled")

	// ErrAlreadyRunning is returned when Run is called on an engine that is
	// already running.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotConfigured is returned when Run is called before Configure.
	ErrNotConfigured = errors.New("engine not configured")
)

// ConfigurationError reports an invalid or missing run setting. It is raised
// before any I/O and the engine never leaves IDLE.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Invalid builds a ConfigurationError.
func Invalid(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// RecoverableIOError wraps a transient failure worth retrying.
type RecoverableIOError struct {
	Op  string
	Err error
}

func (e *RecoverableIOError) Error() string {
	return fmt.Sprintf("recoverable error during %s: %v", e.Op, e.Err)
}

func (e *RecoverableIOError) Unwrap() error { return e.Err }

// StructuralError aborts the run: an unwritable destination or an
// unreachable mail store.
type StructuralError struct {
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural failure during %s: %v", e.Op, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Structural wraps err as a StructuralError unless it already is one.
func Structural(op string, err error) error {
	var se *StructuralError
	if errors.As(err, &se) {
		return err
	}
	return &StructuralError{Op: op, Err: err}
}

// IsStructural reports whether err aborts a run.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsRecoverable reports whether err may be retried.
func IsRecoverable(err error) bool {
	var re *RecoverableIOError
	return errors.As(err, &re)
}
