package engine

import (
	"time"
)

// Phase names a step of an engine's run.
type Phase string

// Severity of a LogEntry.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// LogEntry is a human-readable line emitted during a run.
type LogEntry struct {
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
}

// ProgressEvent reports position within the current phase.
type ProgressEvent struct {
	Phase   Phase  `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Detail  string `json:"detail,omitempty"`
}

// Percent returns completion of the phase in the range 0-100. An unknown
// total yields 0.
func (p ProgressEvent) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Current * 100 / p.Total
	if pct > 100 {
		return 100
	}
	return pct
}

// Tally selects which aggregate counter a processed item lands in.
type Tally int

const (
	TallyProcessed Tally = iota
	TallySkipped
	TallyErrored
)

// Counts aggregates per-item outcomes of a run.
type Counts struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

func (c *Counts) add(t Tally) {
	switch t {
	case TallyProcessed:
		c.Processed++
	case TallySkipped:
		c.Skipped++
	case TallyErrored:
		c.Errored++
	}
}

// Total is the number of items that reached a decision.
func (c Counts) Total() int {
	return c.Processed + c.Skipped + c.Errored
}

// Result is the terminal summary of one run. It is read-only once returned.
type Result[R any] struct {
	RunID     string        `json:"run_id"`
	Engine    string        `json:"engine"`
	State     State         `json:"state"`
	Records   []R           `json:"records"`
	Counts    Counts        `json:"counts"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Logs      []LogEntry    `json:"logs"`
	Err       error         `json:"-"`
}

// Callbacks receive engine notifications synchronously on the run
// goroutine. Any field may be nil.
type Callbacks[R any] struct {
	OnProgress    func(ProgressEvent)
	OnLog         func(LogEntry)
	OnPhaseChange func(Phase)
	OnComplete    func(*Result[R])
}
