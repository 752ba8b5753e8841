package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/spf13/afero"
)

// RunRecord summarises one finished engine run
type RunRecord struct {
	RunID       string    `json:"run_id" db:"run_id"`
	JobID       string    `json:"job_id" db:"job_id"`
	Engine      string    `json:"engine" db:"engine"`
	State       string    `json:"state" db:"state"`
	StartedAt   time.Time `json:"started_at" db:"-"`
	ElapsedMS   int64     `json:"elapsed_ms" db:"elapsed_ms"`
	Processed   int       `json:"processed" db:"processed"`
	Skipped     int       `json:"skipped" db:"skipped"`
	Errored     int       `json:"errored" db:"errored"`
	Source      string    `json:"source" db:"source"`
	Destination string    `json:"destination" db:"destination"`
	Error       string    `json:"error,omitempty" db:"error"`
}

// NewRunRecord builds the history entry of a run result.
func NewRunRecord[R any](jobID, source, destination string, res *engine.Result[R]) RunRecord {
	rec := RunRecord{
		RunID:       res.RunID,
		JobID:       jobID,
		Engine:      res.Engine,
		State:       res.State.String(),
		StartedAt:   res.StartedAt.UTC(),
		ElapsedMS:   res.Elapsed.Milliseconds(),
		Processed:   res.Counts.Processed,
		Skipped:     res.Counts.Skipped,
		Errored:     res.Counts.Errored,
		Source:      source,
		Destination: destination,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Filter narrows GetRecords. Zero fields match everything.
type Filter struct {
	JobID  string
	Engine string
	State  string
	Limit  int
}

func (f Filter) match(r RunRecord) bool {
	return (f.JobID == "" || r.JobID == f.JobID) &&
		(f.Engine == "" || r.Engine == f.Engine) &&
		(f.State == "" || r.State == f.State)
}

// Storage defines the interface for the run history
type Storage interface {
	// Initialize prepares the storage for use
	Initialize() error

	// Close cleans up any resources used by the storage
	Close() error

	// AddRecord appends a run record
	AddRecord(ctx context.Context, record RunRecord) error

	// GetRecords returns matching records, newest first
	GetRecords(ctx context.Context, filter Filter) ([]RunRecord, error)

	// CleanupOldRecords removes records older than the specified retention period
	CleanupOldRecords(ctx context.Context, retentionDays int) error
}

// NewStorage creates a new storage implementation based on the specified type
func NewStorage(storageType, storagePath string) (Storage, error) {
	switch storageType {
	case "file", "":
		return NewFileStorage(afero.NewOsFs(), storagePath)
	case "sqlite":
		return NewSQLiteStorage(storagePath)
	default:
		return nil, ErrUnsupportedStorageType
	}
}

// Common errors
var (
	ErrUnsupportedStorageType = errors.New("unsupported storage type")
	ErrStorageNotInitialized  = errors.New("storage not initialized")
)
