package errorlog

import (
	"time"

	"github.com/altafino/docflow/internal/models"
)

// Entry is one document that could not be placed during a run
type Entry struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	RunID     string    `json:"run_id"`
	Engine    string    `json:"engine"`
	Item      string    `json:"item"`
	MessageID string    `json:"message_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Folder    string    `json:"folder,omitempty"`
	ErrorTime time.Time `json:"error_time"`
	ErrorMsg  string    `json:"error_message"`
}

// Logger defines the interface for error logging
type Logger interface {
	// LogError records a failed document
	LogError(e Entry) error

	// GetErrors retrieves errors based on filters
	GetErrors(filters map[string]string) ([]Entry, error)

	// CleanupOldErrors removes errors older than the retention period
	CleanupOldErrors() error

	// Close releases any resources used by the logger
	Close() error
}

// AttachmentEntries returns one entry per errored attachment record.
func AttachmentEntries(records []models.AttachmentRecord) []Entry {
	var out []Entry
	for _, r := range records {
		if r.Outcome != models.OutcomeErrored {
			continue
		}
		item := r.OriginalName
		if item == "" {
			item = r.MessageID
		}
		out = append(out, Entry{
			Item:      item,
			MessageID: r.MessageID,
			Subject:   r.Subject,
			Folder:    r.Folder,
			ErrorTime: r.ProcessedAt,
			ErrorMsg:  r.Error,
		})
	}
	return out
}

// ClassificationEntries returns one entry per errored classification record.
func ClassificationEntries(records []models.ClassificationRecord) []Entry {
	var out []Entry
	for _, r := range records {
		if r.Outcome != models.OutcomeErrored {
			continue
		}
		out = append(out, Entry{
			Item:      r.SourcePath,
			ErrorTime: r.ProcessedAt,
			ErrorMsg:  r.Error,
		})
	}
	return out
}
