// Package classifier routes the documents of a flat folder into signed and
// unsigned subfolders by file name.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/fileops"
	"github.com/altafino/docflow/internal/models"
	"github.com/spf13/afero"
)

const (
	PhaseEnumerate engine.Phase = "ENUMERATE_FILES"
	PhaseRoute     engine.Phase = "CLASSIFY_AND_ROUTE"
)

// Name identifies the engine in logs, run logs and history.
const Name = "classification"

// Classify returns the category of a file name. Signed patterns take
// precedence over unsigned ones. Patterns must already be lower case.
func Classify(name string, signed, unsigned []string) models.Category {
	lower := strings.ToLower(name)
	for _, p := range signed {
		if strings.Contains(lower, p) {
			return models.CategorySigned
		}
	}
	for _, p := range unsigned {
		if strings.Contains(lower, p) {
			return models.CategoryUnsigned
		}
	}
	return models.CategoryUnmatched
}

type Classifier struct {
	*engine.Core[models.ClassificationRecord]

	fs afero.Fs

	mu  sync.Mutex
	cfg *Config
}

var _ engine.Engine[Config, models.ClassificationRecord] = (*Classifier)(nil)

func New(fs afero.Fs, logger *slog.Logger) *Classifier {
	return &Classifier{
		Core: engine.NewCore[models.ClassificationRecord](Name, logger),
		fs:   fs,
	}
}

func (c *Classifier) Configure(cfg Config) error {
	valid, err := cfg.validate()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = &valid
	return nil
}

func (c *Classifier) Run(ctx context.Context) (*engine.Result[models.ClassificationRecord], error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	if cfg == nil {
		return nil, engine.ErrNotConfigured
	}

	run, err := c.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return run.Finish(c.execute(run, *cfg))
}

// router resolves and prepares category folders on first use.
type router struct {
	cfg      Config
	placer   *fileops.Placer
	prepared map[models.Category]string
}

func (r *router) dir(cat models.Category) string {
	switch cat {
	case models.CategorySigned:
		return filepath.Join(r.cfg.DestinationDir, r.cfg.SignedDir)
	case models.CategoryUnsigned:
		return filepath.Join(r.cfg.DestinationDir, r.cfg.UnsignedDir)
	default:
		return filepath.Join(r.cfg.DestinationDir, r.cfg.UnmatchedDir)
	}
}

func (r *router) target(cat models.Category) (string, error) {
	if dir, ok := r.prepared[cat]; ok {
		return dir, nil
	}
	dir := r.dir(cat)
	if r.cfg.CrearSubcarpetas {
		if err := r.placer.Prepare(dir); err != nil {
			return "", err
		}
	}
	r.prepared[cat] = dir
	return dir, nil
}

func (c *Classifier) execute(run *engine.Run[models.ClassificationRecord], cfg Config) error {
	placer := fileops.NewPlacer(c.fs, fileops.RetryPolicy{MaxAttempts: cfg.MaxIntentos, Delay: cfg.Timeout}, c.Logger())
	rt := &router{cfg: cfg, placer: placer, prepared: make(map[models.Category]string)}

	if cfg.CrearSubcarpetas {
		if err := placer.Prepare(cfg.DestinationDir); err != nil {
			return err
		}
	} else {
		for _, cat := range []models.Category{models.CategorySigned, models.CategoryUnsigned} {
			dir := rt.dir(cat)
			info, err := c.fs.Stat(dir)
			if err != nil || !info.IsDir() {
				if err == nil {
					err = fmt.Errorf("%s is not a directory", dir)
				}
				return engine.Structural("check subfolder "+dir, err)
			}
		}
	}

	if cfg.RunLog {
		j, err := engine.OpenJournal(c.fs, cfg.DestinationDir, Name, time.Now(),
			"source:      "+cfg.SourceDir,
			"destination: "+cfg.DestinationDir,
			"mode:        "+string(cfg.Mode),
		)
		if err != nil {
			run.Warnf("could not open run log: %v", err)
		} else {
			run.UseJournal(j)
		}
	}

	if len(cfg.PatronesFirmado) == 0 && len(cfg.PatronesNoFirmado) == 0 {
		run.Warnf("no patterns configured, every document is unmatched")
	}

	run.EnterPhase(PhaseEnumerate)
	if err := run.Checkpoint(); err != nil {
		return err
	}
	files, err := c.listFiles(run, placer, cfg.SourceDir)
	if err != nil {
		return err
	}
	run.Infof("%d document(s) found in %s", len(files), cfg.SourceDir)

	run.EnterPhase(PhaseRoute)
	total := len(files)
	run.Progress(0, total, "")
	stats := make(map[models.Category]int)
	for i, info := range files {
		if err := run.Checkpoint(); err != nil {
			return err
		}
		cat, err := c.route(run, rt, cfg, info)
		if err != nil {
			return err
		}
		if cat != "" {
			stats[cat]++
		}
		run.Progress(i+1, total, info.Name())
	}

	counts := run.Counts()
	run.Infof("classification finished: %d signed, %d unsigned, %d unmatched, %d skipped, %d failed",
		stats[models.CategorySigned], stats[models.CategoryUnsigned], stats[models.CategoryUnmatched],
		counts.Skipped, counts.Errored)
	return nil
}

func (c *Classifier) listFiles(run *engine.Run[models.ClassificationRecord], placer *fileops.Placer, dir string) ([]os.FileInfo, error) {
	var infos []os.FileInfo
	err := placer.Retry(run.Token(), "list "+dir, func() error {
		var err error
		infos, err = afero.ReadDir(c.fs, dir)
		return fileops.Classify("list source", err)
	})
	if err != nil {
		if errors.Is(err, engine.ErrCancelled) {
			return nil, err
		}
		return nil, engine.Structural("list source "+dir, err)
	}

	files := make([]os.FileInfo, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, ".") || engine.IsJournal(name) {
			continue
		}
		files = append(files, info)
	}
	return files, nil
}

// route places one document and returns its category, or "" when it was
// left in place.
func (c *Classifier) route(run *engine.Run[models.ClassificationRecord], rt *router, cfg Config, info os.FileInfo) (models.Category, error) {
	name := info.Name()
	src := filepath.Join(cfg.SourceDir, name)
	cat := Classify(name, cfg.PatronesFirmado, cfg.PatronesNoFirmado)

	if cat == models.CategoryUnmatched && !cfg.CrearSubcarpetas {
		run.Count(engine.TallySkipped)
		run.Warnf("%s matches no pattern, left in place", name)
		return "", nil
	}

	dir, err := rt.target(cat)
	if err != nil {
		return "", err
	}

	rec := models.ClassificationRecord{
		SourcePath:  src,
		Category:    cat,
		Size:        info.Size(),
		ProcessedAt: time.Now(),
	}

	pl, err := rt.placer.PlaceFile(run.Token(), src, dir, cfg.Mode == ModeMove)
	if err != nil {
		fatal := errors.Is(err, engine.ErrCancelled) || engine.IsStructural(err)
		// A non-empty path means the content already landed; keep a record of it.
		if fatal && pl.Path == "" {
			return "", err
		}
		rec.Outcome = models.OutcomeErrored
		rec.Error = err.Error()
		rec.DestinationPath = pl.Path
		run.Add(rec, engine.TallyErrored)
		run.Errorf("failed to route %s: %v", name, err)
		if fatal {
			return "", err
		}
		return cat, nil
	}

	rec.DestinationPath = pl.Path
	rec.Outcome = pl.Outcome
	run.Add(rec, pl.Outcome.Tally())

	switch pl.Outcome {
	case models.OutcomeSkippedDuplicate:
		run.Infof("%s already present in %s", name, dir)
	default:
		run.Infof("%s routed to %s (%s)", name, pl.Path, cat)
	}
	return cat, nil
}
