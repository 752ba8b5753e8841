package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/classifier"
	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/errorlog"
	"github.com/altafino/docflow/internal/extractor"
	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/models"
	"github.com/altafino/docflow/internal/report"
	"github.com/altafino/docflow/internal/tracking"
	"github.com/altafino/docflow/internal/types"
	"github.com/altafino/docflow/internal/worker"
	"github.com/spf13/afero"
)

// StoreOpener opens the mail store of an extraction job.
type StoreOpener func(ctx context.Context, cfg *types.Config) (mailstore.Store, error)

// Listeners observe a run. Only the one matching the job kind is used.
type Listeners struct {
	Extract  worker.Listener[models.AttachmentRecord]
	Classify worker.Listener[models.ClassificationRecord]
}

// Summary is what a finished job reports back to its caller.
type Summary struct {
	JobID   string
	RunID   string
	Engine  string
	State   engine.State
	Counts  engine.Counts
	Elapsed time.Duration
	Reports []string
}

// Runner starts jobs on their engine and records their outcome in the
// job's report, run history and error log.
type Runner struct {
	fs        afero.Fs
	logger    *slog.Logger
	openStore StoreOpener
	now       func() time.Time
}

func NewRunner(fs afero.Fs, logger *slog.Logger) *Runner {
	r := &Runner{fs: fs, logger: logger, now: time.Now}
	r.openStore = func(ctx context.Context, cfg *types.Config) (mailstore.Store, error) {
		return OpenStore(ctx, fs, cfg, logger)
	}
	return r
}

// WithStoreOpener replaces how extraction jobs reach their mail store.
func (r *Runner) WithStoreOpener(fn StoreOpener) *Runner {
	r.openStore = fn
	return r
}

// Job is a started run.
type Job struct {
	ID string

	cancel func()
	pause  func()
	resume func()
	done   <-chan struct{}
	finish func(ctx context.Context) (*Summary, error)

	once    sync.Once
	summary *Summary
	err     error
}

// Cancel asks the run to stop at its next checkpoint.
func (j *Job) Cancel() { j.cancel() }

func (j *Job) Pause() { j.pause() }

func (j *Job) Resume() { j.resume() }

// Done is closed once the run's completion has been dispatched.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the run is over, then writes the history entries once.
// The error is non-nil only for a failed run.
func (j *Job) Wait(ctx context.Context) (*Summary, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	j.once.Do(func() {
		j.summary, j.err = j.finish(context.WithoutCancel(ctx))
	})
	return j.summary, j.err
}

// Run starts cfg and waits for it, delivering events directly on the run
// goroutine. Used by the scheduler.
func (r *Runner) Run(ctx context.Context, cfg *types.Config) (*Summary, error) {
	job, err := r.Start(ctx, cfg, worker.Direct, Listeners{})
	if err != nil {
		return nil, err
	}
	return job.Wait(context.WithoutCancel(ctx))
}

// Start configures and launches the engine for cfg. Events reach l through
// d. Configuration errors are returned here and nothing runs.
func (r *Runner) Start(ctx context.Context, cfg *types.Config, d worker.Dispatcher, l Listeners) (*Job, error) {
	switch cfg.Kind {
	case types.KindExtract:
		return r.startExtract(ctx, cfg, d, l.Extract)
	case types.KindClassify:
		return r.startClassify(ctx, cfg, d, l.Classify)
	default:
		return nil, fmt.Errorf("config %s has unknown kind %q", cfg.Meta.ID, cfg.Kind)
	}
}

// pathRecorder remembers where the extractor's report went.
type pathRecorder struct {
	w     *report.Writer
	paths []string
}

func (p *pathRecorder) WriteExtraction(records []models.AttachmentRecord, generated time.Time) ([]string, error) {
	paths, err := p.w.WriteExtraction(records, generated)
	p.paths = paths
	return paths, err
}

func (r *Runner) startExtract(ctx context.Context, cfg *types.Config, d worker.Dispatcher, l worker.Listener[models.AttachmentRecord]) (*Job, error) {
	logger := r.logger.With("job", cfg.Meta.ID)

	ecfg, err := ExtractConfig(cfg, r.now())
	if err != nil {
		return nil, err
	}

	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open mail store: %w", err)
	}

	ex := extractor.New(store, r.fs, logger)
	var recorder *pathRecorder
	if cfg.Report.Enabled {
		w, err := r.reportWriter(ctx, cfg, ecfg.DestinationDir)
		if err != nil {
			store.Close()
			return nil, err
		}
		recorder = &pathRecorder{w: w}
		ex.SetReportWriter(recorder)
	}

	ad := worker.New[extractor.Config, models.AttachmentRecord](ex, d, logger)
	ad.Subscribe(l)
	if err := ad.Start(ctx, ecfg); err != nil {
		store.Close()
		return nil, err
	}

	return &Job{
		ID:     cfg.Meta.ID,
		cancel: ad.RequestCancel,
		pause:  ad.Pause,
		resume: ad.Resume,
		done:   ad.Done(),
		finish: func(ctx context.Context) (*Summary, error) {
			res, err := ad.Wait(ctx)
			if cerr := store.Close(); cerr != nil {
				logger.Warn("failed to close mail store", "error", cerr)
			}
			if res == nil {
				return nil, err
			}

			s := summarize(cfg.Meta.ID, res)
			if recorder != nil {
				s.Reports = recorder.paths
			}
			r.record(ctx, cfg, logger,
				tracking.NewRunRecord(cfg.Meta.ID, ecfg.SourceFolder, ecfg.DestinationDir, res),
				errorlog.AttachmentEntries(res.Records))
			return s, err
		},
	}, nil
}

func (r *Runner) startClassify(ctx context.Context, cfg *types.Config, d worker.Dispatcher, l worker.Listener[models.ClassificationRecord]) (*Job, error) {
	logger := r.logger.With("job", cfg.Meta.ID)
	ccfg := ClassifyConfig(cfg)

	var writer *report.Writer
	if cfg.Report.Enabled {
		var err error
		if writer, err = r.reportWriter(ctx, cfg, ccfg.DestinationDir); err != nil {
			return nil, err
		}
	}

	cl := classifier.New(r.fs, logger)
	ad := worker.New[classifier.Config, models.ClassificationRecord](cl, d, logger)
	ad.Subscribe(l)
	if err := ad.Start(ctx, ccfg); err != nil {
		return nil, err
	}

	return &Job{
		ID:     cfg.Meta.ID,
		cancel: ad.RequestCancel,
		pause:  ad.Pause,
		resume: ad.Resume,
		done:   ad.Done(),
		finish: func(ctx context.Context) (*Summary, error) {
			res, err := ad.Wait(ctx)
			if res == nil {
				return nil, err
			}

			s := summarize(cfg.Meta.ID, res)
			if writer != nil && res.State == engine.StateCompleted {
				paths, werr := writer.WriteClassification(res.Records, r.now())
				if werr != nil {
					logger.Warn("failed to write document list", "error", werr)
				}
				s.Reports = paths
			}
			r.record(ctx, cfg, logger,
				tracking.NewRunRecord(cfg.Meta.ID, ccfg.SourceDir, ccfg.DestinationDir, res),
				errorlog.ClassificationEntries(res.Records))
			return s, err
		},
	}, nil
}

func summarize[R any](jobID string, res *engine.Result[R]) *Summary {
	return &Summary{
		JobID:   jobID,
		RunID:   res.RunID,
		Engine:  res.Engine,
		State:   res.State,
		Counts:  res.Counts,
		Elapsed: res.Elapsed,
	}
}

func (r *Runner) reportWriter(ctx context.Context, cfg *types.Config, destination string) (*report.Writer, error) {
	formats, err := report.ParseFormats(cfg.Report.Format)
	if err != nil {
		return nil, err
	}
	dir := cfg.Report.Dir
	if dir == "" {
		dir = destination
	}
	w := report.NewWriter(r.fs, filepath.Clean(dir), formats, r.logger)

	gd := cfg.Report.GDrive
	if gd.Enabled {
		pub, err := report.NewGDrivePublisher(ctx, r.logger, gd.CredentialsFile, gd.ParentFolderID, gd.FolderPath)
		if err != nil {
			return nil, err
		}
		w.WithPublisher(pub)
	}
	return w, nil
}

// record stores the run in the history and its errored items in the error
// log. Failures here are logged and never change the run's outcome.
func (r *Runner) record(ctx context.Context, cfg *types.Config, logger *slog.Logger, run tracking.RunRecord, errs []errorlog.Entry) {
	tm, err := tracking.NewManager(cfg, logger)
	if err != nil {
		logger.Warn("run history unavailable", "error", err)
	} else {
		if err := tm.TrackRun(ctx, run); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
		if err := tm.CleanupOldRecords(ctx); err != nil {
			logger.Warn("failed to clean up run history", "error", err)
		}
		tm.Close()
	}

	em, err := errorlog.NewManager(cfg, logger)
	if err != nil {
		logger.Warn("error log unavailable", "error", err)
		return
	}
	defer em.Close()
	if err := em.LogRun(run.RunID, run.Engine, errs); err != nil {
		logger.Warn("failed to log document errors", "error", err)
	}
}

// Folders lists the mail folders an extraction job can read.
func (r *Runner) Folders(ctx context.Context, cfg *types.Config) ([]string, error) {
	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open mail store: %w", err)
	}
	defer store.Close()
	return store.Folders(ctx)
}
