package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/altafino/docflow/internal/models"
	"github.com/spf13/afero"
)

// Format is an output encoding of a document list.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormats accepts "json", "csv" or a comma separated combination.
func ParseFormats(s string) ([]Format, error) {
	if strings.TrimSpace(s) == "" {
		return []Format{FormatJSON}, nil
	}
	var formats []Format
	for _, part := range strings.Split(s, ",") {
		switch f := Format(strings.ToLower(strings.TrimSpace(part))); f {
		case FormatJSON, FormatCSV:
			formats = append(formats, f)
		default:
			return nil, fmt.Errorf("unsupported report format: %q", part)
		}
	}
	return formats, nil
}

// Publisher copies a written report somewhere else, returning where it
// ended up.
type Publisher interface {
	Publish(ctx context.Context, fs afero.Fs, path string) (string, error)
}

// Writer writes document lists into a directory.
type Writer struct {
	fs        afero.Fs
	dir       string
	formats   []Format
	publisher Publisher
	logger    *slog.Logger
}

func NewWriter(fs afero.Fs, dir string, formats []Format, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(formats) == 0 {
		formats = []Format{FormatJSON}
	}
	return &Writer{fs: fs, dir: dir, formats: formats, logger: logger}
}

// WithPublisher uploads every written file through p.
func (w *Writer) WithPublisher(p Publisher) *Writer {
	w.publisher = p
	return w
}

// FileName returns the list name for prefix at t, without extension.
func FileName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_fecha(%s)_hora(%s)", prefix, t.Format("02.01.2006"), t.Format("15.04.05"))
}

// WriteExtraction writes the list of an extraction run. Nothing is written
// when there are no records.
func (w *Writer) WriteExtraction(records []models.AttachmentRecord, generated time.Time) ([]string, error) {
	if len(records) == 0 {
		w.logger.Info("no documents to list")
		return nil, nil
	}
	rows := AttachmentRows(records)
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, r.cells())
	}
	return w.write(FileName("lista_documentos", generated), rows, attachmentHeader, table)
}

// WriteClassification writes the list of a classification run.
func (w *Writer) WriteClassification(records []models.ClassificationRecord, generated time.Time) ([]string, error) {
	if len(records) == 0 {
		w.logger.Info("no documents to list")
		return nil, nil
	}
	rows := ClassificationRows(records)
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, r.cells())
	}
	return w.write(FileName("lista_clasificacion", generated), rows, classificationHeader, table)
}

func (w *Writer) write(base string, rows any, header []string, table [][]string) ([]string, error) {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var paths []string
	for _, f := range w.formats {
		path := filepath.Join(w.dir, base+"."+string(f))
		var err error
		switch f {
		case FormatCSV:
			err = w.create(path, func(out io.Writer) error { return encodeCSV(out, header, table) })
		default:
			err = w.create(path, func(out io.Writer) error { return encodeJSON(out, rows) })
		}
		if err != nil {
			return paths, err
		}
		w.logger.Info("document list written", "path", path, "rows", len(table))
		paths = append(paths, path)
	}

	if w.publisher != nil {
		for _, p := range paths {
			id, err := w.publisher.Publish(context.Background(), w.fs, p)
			if err != nil {
				return paths, fmt.Errorf("failed to publish %s: %w", p, err)
			}
			w.logger.Info("document list published", "path", p, "id", id)
		}
	}
	return paths, nil
}

func (w *Writer) create(path string, encode func(io.Writer) error) error {
	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func encodeJSON(w io.Writer, rows any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func encodeCSV(w io.Writer, header []string, table [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(table); err != nil {
		return err
	}
	return cw.Error()
}
