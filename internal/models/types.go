package models

import (
	"fmt"
	"time"

	"github.com/altafino/docflow/internal/engine"
)

// Outcome is what happened to a single file placement.
type Outcome string

const (
	OutcomeSaved            Outcome = "saved"
	OutcomeSkippedDuplicate Outcome = "skipped-duplicate"
	OutcomeRenamed          Outcome = "renamed"
	OutcomeErrored          Outcome = "errored"
)

// Tally maps an outcome to the run counter it increments.
func (o Outcome) Tally() engine.Tally {
	switch o {
	case OutcomeSkippedDuplicate:
		return engine.TallySkipped
	case OutcomeErrored:
		return engine.TallyErrored
	default:
		return engine.TallyProcessed
	}
}

// Category is the bucket a document is routed to.
type Category string

const (
	CategorySigned    Category = "signed"
	CategoryUnsigned  Category = "unsigned"
	CategoryUnmatched Category = "unmatched"
)

// DateRange bounds message received dates. A nil end is open.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// WholeDays widens the range so that Start is the first instant of its day
// and End the last instant of its day.
func (r DateRange) WholeDays() DateRange {
	out := DateRange{}
	if r.Start != nil {
		s := r.Start
		start := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
		out.Start = &start
	}
	if r.End != nil {
		e := r.End
		end := time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, 999999999, e.Location())
		out.End = &end
	}
	return out
}

// Contains reports whether t falls within the inclusive range.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// Overlaps reports whether the range intersects [earliest, latest].
func (r DateRange) Overlaps(earliest, latest time.Time) bool {
	if r.Start != nil && latest.Before(*r.Start) {
		return false
	}
	if r.End != nil && earliest.After(*r.End) {
		return false
	}
	return true
}

func (r DateRange) String() string {
	start, end := "-", "-"
	if r.Start != nil {
		start = r.Start.Format("2006-01-02")
	}
	if r.End != nil {
		end = r.End.Format("2006-01-02")
	}
	return fmt.Sprintf("%s .. %s", start, end)
}

// AttachmentRecord describes one attachment handled by an extraction run.
type AttachmentRecord struct {
	MessageID    string    `json:"message_id"`
	Subject      string    `json:"subject"`
	Folder       string    `json:"folder"`
	ReceivedAt   time.Time `json:"received_at"`
	OriginalName string    `json:"original_name"`
	SavedPath    string    `json:"saved_path,omitempty"`
	Size         int64     `json:"size"`
	Hash         string    `json:"hash,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// ClassificationRecord describes one document routed by a classification run.
type ClassificationRecord struct {
	SourcePath      string    `json:"source_path"`
	Category        Category  `json:"category"`
	DestinationPath string    `json:"destination_path,omitempty"`
	Size            int64     `json:"size"`
	Outcome         Outcome   `json:"outcome"`
	Error           string    `json:"error,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
}
