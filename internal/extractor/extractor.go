// Package extractor saves the attachments of matching messages from one mail
// folder into a destination directory.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/fileops"
	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/models"
	"github.com/spf13/afero"
)

const (
	PhaseDiscoverRange    engine.Phase = "DISCOVER_RANGE"
	PhaseEnumerate        engine.Phase = "ENUMERATE_MESSAGES"
	PhaseFilterAndExtract engine.Phase = "FILTER_AND_EXTRACT"
	PhaseWriteReport      engine.Phase = "WRITE_REPORT"
)

// Name identifies the engine in logs, run logs and history.
const Name = "extraction"

// ReportWriter renders the records of a finished extraction and returns the
// paths it wrote.
type ReportWriter interface {
	WriteExtraction(records []models.AttachmentRecord, generated time.Time) ([]string, error)
}

type Extractor struct {
	*engine.Core[models.AttachmentRecord]

	store mailstore.Store
	fs    afero.Fs

	mu     sync.Mutex
	cfg    *Config
	report ReportWriter
}

var _ engine.Engine[Config, models.AttachmentRecord] = (*Extractor)(nil)

// New creates an extractor reading from store and writing to fs.
func New(store mailstore.Store, fs afero.Fs, logger *slog.Logger) *Extractor {
	return &Extractor{
		Core:  engine.NewCore[models.AttachmentRecord](Name, logger),
		store: store,
		fs:    fs,
	}
}

// SetReportWriter sets the writer used in the WRITE_REPORT phase. Without
// one the phase only summarises.
func (e *Extractor) SetReportWriter(w ReportWriter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report = w
}

// Configure validates cfg and keeps it for the next run.
func (e *Extractor) Configure(cfg Config) error {
	valid, err := cfg.validate(e.store)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = &valid
	return nil
}

// Run performs one extraction. The returned error is non-nil only when the
// run could not start or failed; a cancelled run returns its partial result.
func (e *Extractor) Run(ctx context.Context) (*engine.Result[models.AttachmentRecord], error) {
	e.mu.Lock()
	cfg, report := e.cfg, e.report
	e.mu.Unlock()
	if cfg == nil {
		return nil, engine.ErrNotConfigured
	}

	run, err := e.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return run.Finish(e.execute(run, *cfg, report))
}

func (e *Extractor) execute(run *engine.Run[models.AttachmentRecord], cfg Config, report ReportWriter) error {
	placer := fileops.NewPlacer(e.fs, fileops.RetryPolicy{MaxAttempts: cfg.MaxIntentos, Delay: cfg.Timeout}, e.Logger())
	if err := placer.Prepare(cfg.DestinationDir); err != nil {
		return err
	}

	rng := models.DateRange{Start: cfg.DateStart, End: cfg.DateEnd}.WholeDays()
	if cfg.RunLog {
		j, err := engine.OpenJournal(e.fs, cfg.DestinationDir, Name, time.Now(),
			"folder:  "+cfg.SourceFolder,
			"range:   "+rng.String(),
			fmt.Sprintf("phrases: %q", cfg.SearchPhrases),
		)
		if err != nil {
			run.Warnf("could not open run log: %v", err)
		} else {
			run.UseJournal(j)
		}
	}

	if len(cfg.SearchPhrases) == 0 {
		run.Warnf("no search phrases configured, every message with attachments will be extracted")
	}

	run.EnterPhase(PhaseDiscoverRange)
	if err := run.Checkpoint(); err != nil {
		return err
	}
	ctx := run.Context()

	var folder mailstore.Folder
	err := placer.Retry(run.Token(), "open folder", func() error {
		var err error
		folder, err = e.store.Folder(ctx, cfg.SourceFolder)
		return err
	})
	if err != nil {
		return sourceError("open folder "+cfg.SourceFolder, err)
	}

	var earliest, latest time.Time
	err = placer.Retry(run.Token(), "read folder range", func() error {
		var err error
		earliest, latest, err = folder.Bounds(ctx)
		return err
	})
	if errors.Is(err, mailstore.ErrEmptyFolder) {
		run.Infof("folder %s holds no messages, nothing to extract", folder.Path())
		return nil
	}
	if err != nil {
		return sourceError("read folder range", err)
	}

	run.Infof("folder %s holds messages from %s to %s",
		folder.Path(), earliest.Format(time.DateOnly), latest.Format(time.DateOnly))
	if !rng.Overlaps(earliest, latest) {
		run.Infof("requested range %s lies outside the folder's messages, nothing to extract", rng)
		return nil
	}
	held := models.DateRange{Start: &earliest, End: &latest}.WholeDays()
	if rng.Start != nil && rng.Start.Before(*held.Start) {
		run.Warnf("requested start %s precedes the oldest message, searching from %s",
			rng.Start.Format(time.DateOnly), earliest.Format(time.DateOnly))
	}
	if rng.End != nil && rng.End.After(*held.End) {
		run.Warnf("requested end %s follows the newest message, searching up to %s",
			rng.End.Format(time.DateOnly), latest.Format(time.DateOnly))
	}

	run.EnterPhase(PhaseEnumerate)
	var it mailstore.MessageIterator
	err = placer.Retry(run.Token(), "list messages", func() error {
		var err error
		it, err = folder.Messages(ctx, rng)
		return err
	})
	if err != nil {
		return sourceError("list messages", err)
	}
	defer it.Close()

	total := it.Total()
	run.Infof("%d message(s) in range", total)

	run.EnterPhase(PhaseFilterAndExtract)
	run.Progress(0, total, "")
	for i := 0; ; i++ {
		if err := run.Checkpoint(); err != nil {
			return err
		}
		if !it.Next(ctx) {
			break
		}
		msg := it.Message()
		if rng.Contains(msg.ReceivedAt()) {
			if err := e.processMessage(run, placer, cfg, folder.Path(), msg); err != nil {
				return err
			}
		}
		run.Progress(i+1, total, msg.Subject())
	}
	if err := it.Err(); err != nil {
		if run.Token().Cancelled() {
			return engine.ErrCancelled
		}
		return engine.Structural("iterate messages", err)
	}

	run.EnterPhase(PhaseWriteReport)
	counts := run.Counts()
	run.Infof("extraction finished: %d saved, %d skipped, %d failed",
		counts.Processed, counts.Skipped, counts.Errored)
	if report != nil {
		paths, err := report.WriteExtraction(run.Records(), time.Now())
		if err != nil {
			run.Warnf("could not write document list: %v", err)
		}
		for _, p := range paths {
			run.Infof("document list written to %s", p)
		}
	}
	return nil
}

func (e *Extractor) processMessage(run *engine.Run[models.AttachmentRecord], placer *fileops.Placer, cfg Config, folder string, msg mailstore.Message) error {
	tok := run.Token()
	subject := msg.Subject()
	base := models.AttachmentRecord{
		MessageID:  msg.ID(),
		Subject:    subject,
		Folder:     folder,
		ReceivedAt: msg.ReceivedAt(),
	}

	if len(cfg.SearchPhrases) > 0 && !matchAny(subject, cfg.SearchPhrases) {
		var body string
		err := placer.Retry(tok, "read message body", func() error {
			var err error
			body, err = msg.Body()
			return fileops.Classify("read message body", err)
		})
		if err != nil {
			return messageFailed(run, base, err)
		}
		if !matchAny(body, cfg.SearchPhrases) {
			return nil
		}
	}

	var atts []mailstore.Attachment
	err := placer.Retry(tok, "read attachments", func() error {
		var err error
		atts, err = msg.Attachments()
		return fileops.Classify("read attachments", err)
	})
	if err != nil {
		return messageFailed(run, base, err)
	}
	if len(atts) == 0 {
		run.Infof("message %q matches but has no attachments", subject)
		return nil
	}

	for idx, att := range atts {
		if idx > 0 {
			if err := run.Checkpoint(); err != nil {
				return err
			}
		}

		rec := base
		rec.OriginalName = att.Filename()
		rec.ProcessedAt = time.Now()

		pl, err := placer.Place(tok, att, cfg.DestinationDir, att.Filename())
		if err != nil {
			if errors.Is(err, engine.ErrCancelled) || engine.IsStructural(err) {
				return err
			}
			rec.Outcome = models.OutcomeErrored
			rec.Error = err.Error()
			run.Add(rec, engine.TallyErrored)
			run.Errorf("failed to save %s from %q: %v", att.Filename(), subject, err)
			continue
		}

		rec.SavedPath = pl.Path
		rec.Size = pl.Size
		rec.Hash = pl.Hash
		rec.Outcome = pl.Outcome
		run.Add(rec, pl.Outcome.Tally())

		switch pl.Outcome {
		case models.OutcomeSkippedDuplicate:
			run.Infof("skipped %s, identical file already at %s", att.Filename(), pl.Path)
		case models.OutcomeRenamed:
			run.Infof("saved %s as %s", att.Filename(), pl.Path)
		default:
			run.Infof("saved %s", pl.Path)
		}
	}
	return nil
}

// messageFailed records an unreadable message. Cancellation and structural
// failures abort the run instead.
func messageFailed(run *engine.Run[models.AttachmentRecord], rec models.AttachmentRecord, err error) error {
	if errors.Is(err, engine.ErrCancelled) || engine.IsStructural(err) {
		return err
	}
	rec.Outcome = models.OutcomeErrored
	rec.Error = err.Error()
	rec.ProcessedAt = time.Now()
	run.Add(rec, engine.TallyErrored)
	run.Errorf("failed to read message %q: %v", rec.Subject, err)
	return nil
}

// sourceError turns a failure to reach the source folder into a structural
// error, keeping cancellation distinct.
func sourceError(op string, err error) error {
	if errors.Is(err, engine.ErrCancelled) || errors.Is(err, context.Canceled) {
		return engine.ErrCancelled
	}
	if engine.IsStructural(err) {
		return err
	}
	return engine.Structural(op, err)
}
