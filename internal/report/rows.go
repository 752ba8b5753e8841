// Package report renders run records as numbered document lists.
package report

import (
	"path/filepath"
	"strconv"

	"github.com/altafino/docflow/internal/models"
)

const (
	dateTimeLayout = "02/01/2006 15:04:05"
	dateLayout     = "02/01/2006"
	timeLayout     = "15:04:05"
)

// AttachmentRow is one line of an extraction document list.
type AttachmentRow struct {
	N          int            `json:"n"`
	File       string         `json:"file"`
	Downloaded string         `json:"downloaded"`
	MailDate   string         `json:"mail_date"`
	MailTime   string         `json:"mail_time"`
	Subject    string         `json:"subject"`
	Outcome    models.Outcome `json:"outcome"`
	Size       int64          `json:"size"`
	Path       string         `json:"path,omitempty"`
	Error      string         `json:"error,omitempty"`
}

var attachmentHeader = []string{
	"Nº", "Nombre del archivo", "Fecha de descarga", "Fecha correo", "Hora correo",
	"Asunto", "Resultado", "Tamaño", "Ruta", "Error",
}

func (r AttachmentRow) cells() []string {
	return []string{
		strconv.Itoa(r.N), r.File, r.Downloaded, r.MailDate, r.MailTime,
		r.Subject, string(r.Outcome), strconv.FormatInt(r.Size, 10), r.Path, r.Error,
	}
}

// AttachmentRows numbers records from 1 in run order.
func AttachmentRows(records []models.AttachmentRecord) []AttachmentRow {
	rows := make([]AttachmentRow, 0, len(records))
	for i, rec := range records {
		file := rec.OriginalName
		if rec.SavedPath != "" {
			file = filepath.Base(rec.SavedPath)
		}
		row := AttachmentRow{
			N:       i + 1,
			File:    file,
			Subject: rec.Subject,
			Outcome: rec.Outcome,
			Size:    rec.Size,
			Path:    rec.SavedPath,
			Error:   rec.Error,
		}
		if !rec.ProcessedAt.IsZero() {
			row.Downloaded = rec.ProcessedAt.Format(dateTimeLayout)
		}
		if !rec.ReceivedAt.IsZero() {
			row.MailDate = rec.ReceivedAt.Format(dateLayout)
			row.MailTime = rec.ReceivedAt.Format(timeLayout)
		}
		rows = append(rows, row)
	}
	return rows
}

// ClassificationRow is one line of a classification document list.
type ClassificationRow struct {
	N           int             `json:"n"`
	File        string          `json:"file"`
	Category    models.Category `json:"category"`
	Outcome     models.Outcome  `json:"outcome"`
	Processed   string          `json:"processed"`
	Size        int64           `json:"size"`
	Source      string          `json:"source"`
	Destination string          `json:"destination,omitempty"`
	Error       string          `json:"error,omitempty"`
}

var classificationHeader = []string{
	"Nº", "Nombre del archivo", "Categoría", "Resultado", "Fecha de proceso",
	"Tamaño", "Origen", "Destino", "Error",
}

func (r ClassificationRow) cells() []string {
	return []string{
		strconv.Itoa(r.N), r.File, string(r.Category), string(r.Outcome), r.Processed,
		strconv.FormatInt(r.Size, 10), r.Source, r.Destination, r.Error,
	}
}

func ClassificationRows(records []models.ClassificationRecord) []ClassificationRow {
	rows := make([]ClassificationRow, 0, len(records))
	for i, rec := range records {
		row := ClassificationRow{
			N:           i + 1,
			File:        filepath.Base(rec.SourcePath),
			Category:    rec.Category,
			Outcome:     rec.Outcome,
			Size:        rec.Size,
			Source:      rec.SourcePath,
			Destination: rec.DestinationPath,
			Error:       rec.Error,
		}
		if !rec.ProcessedAt.IsZero() {
			row.Processed = rec.ProcessedAt.Format(dateTimeLayout)
		}
		rows = append(rows, row)
	}
	return rows
}
