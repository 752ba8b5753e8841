package fileops

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/models"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
)

const (
	stagingPattern = ".docflow-*.part"
	maxCandidates  = 10000
)

// RetryPolicy bounds how often a recoverable failure is attempted.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
}

// Placement is the result of placing one file.
type Placement struct {
	Path    string
	Outcome models.Outcome
	Size    int64
	Hash    string
}

// Placer copies content into a destination directory, resolving name
// collisions by content: identical content is skipped, different content
// gets the next free "name (n).ext".
type Placer struct {
	fs     afero.Fs
	policy RetryPolicy
	logger *slog.Logger
}

func NewPlacer(fs afero.Fs, policy RetryPolicy, logger *slog.Logger) *Placer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Placer{fs: fs, policy: policy, logger: logger}
}

func (p *Placer) Fs() afero.Fs { return p.fs }

// Retry runs fn under the placer's policy. Recoverable errors are retried;
// the wait between attempts observes cancellation.
func (p *Placer) Retry(tok *engine.Token, op string, fn func() error) error {
	err := p.retry(tok.Context(), op, fn)
	if err != nil && tok.Cancelled() && errors.Is(err, context.Canceled) {
		return engine.ErrCancelled
	}
	return err
}

func (p *Placer) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return retry.Do(ctx, p.policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if engine.IsRecoverable(err) {
			p.logger.Debug("recoverable failure, retrying",
				"op", op,
				"attempt", attempt,
				"max_attempts", p.policy.MaxAttempts,
				"error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// Prepare creates dir if needed and probes that it accepts writes. Any
// failure is structural.
func (p *Placer) Prepare(dir string) error {
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return engine.Structural("create destination", err)
	}
	probe, err := afero.TempFile(p.fs, dir, stagingPattern)
	if err != nil {
		return engine.Structural("probe destination", err)
	}
	name := probe.Name()
	probe.Close()
	if err := p.fs.Remove(name); err != nil {
		return engine.Structural("probe destination", err)
	}
	return nil
}

// Place writes src into destDir under name or the first collision
// candidate. The write lands in a staging file first so the final name never
// holds partial content. Cancellation is observed until the write starts;
// once it has, the file is finished and put in place.
func (p *Placer) Place(tok *engine.Token, src io.WriterTo, destDir, name string) (Placement, error) {
	name = SanitizeFilename(name)

	var staged string
	var size int64
	var sum string
	err := p.Retry(tok, "stage "+name, func() error {
		var err error
		staged, size, sum, err = p.stage(src, destDir)
		return err
	})
	if err != nil {
		return Placement{}, err
	}

	placement, err := p.resolve(context.WithoutCancel(tok.Context()), staged, destDir, name, size, sum)
	if err != nil || placement.Outcome == models.OutcomeSkippedDuplicate {
		_ = p.fs.Remove(staged)
	}
	return placement, err
}

// PlaceFile places the file at srcPath into destDir. With move set the
// source is removed once its content is in place, unless the destination
// already held it.
func (p *Placer) PlaceFile(tok *engine.Token, srcPath, destDir string, move bool) (Placement, error) {
	placement, err := p.Place(tok, &fileSource{fs: p.fs, path: srcPath}, destDir, filepath.Base(srcPath))
	if err != nil || !move || placement.Outcome == models.OutcomeSkippedDuplicate {
		return placement, err
	}

	err = p.retry(context.WithoutCancel(tok.Context()), "remove "+srcPath, func() error {
		return Classify("remove source", p.fs.Remove(srcPath))
	})
	if err != nil {
		return placement, fmt.Errorf("placed %s but failed to remove source: %w", placement.Path, err)
	}
	return placement, nil
}

func (p *Placer) stage(src io.WriterTo, destDir string) (string, int64, string, error) {
	tmp, err := afero.TempFile(p.fs, destDir, stagingPattern)
	if err != nil {
		return "", 0, "", classifyDestination("create staging file", err)
	}
	name := tmp.Name()

	h := sha256.New()
	n, werr := src.WriteTo(io.MultiWriter(&destWriter{w: tmp}, h))
	cerr := tmp.Close()
	if werr == nil && cerr != nil {
		werr = &destinationError{err: cerr}
	}
	if werr != nil {
		_ = p.fs.Remove(name)
		var de *destinationError
		if errors.As(werr, &de) {
			return "", 0, "", classifyDestination("write staging file", de.err)
		}
		return "", 0, "", Classify("read source", werr)
	}
	return name, n, hex.EncodeToString(h.Sum(nil)), nil
}

func (p *Placer) resolve(ctx context.Context, staged, destDir, name string, size int64, sum string) (Placement, error) {
	for n := 0; n < maxCandidates; n++ {
		candidate := filepath.Join(destDir, CandidateName(name, n))

		info, err := p.statCandidate(ctx, candidate)
		if err != nil {
			return Placement{}, err
		}

		if info == nil {
			claimed, err := p.claim(ctx, staged, candidate)
			if err != nil {
				return Placement{}, err
			}
			if claimed {
				outcome := models.OutcomeSaved
				if n > 0 {
					outcome = models.OutcomeRenamed
				}
				return Placement{Path: candidate, Outcome: outcome, Size: size, Hash: sum}, nil
			}
			// Created by someone else since the stat.
			if info, err = p.statCandidate(ctx, candidate); err != nil {
				return Placement{}, err
			}
			if info == nil {
				continue
			}
		}

		if info.IsDir() || info.Size() != size {
			continue
		}

		var existing string
		err = p.retry(ctx, "hash "+candidate, func() error {
			var err error
			existing, err = HashFile(p.fs, candidate)
			return Classify("hash candidate", err)
		})
		if err != nil {
			return Placement{}, err
		}
		if existing == sum {
			return Placement{Path: candidate, Outcome: models.OutcomeSkippedDuplicate, Size: size, Hash: sum}, nil
		}
	}
	return Placement{}, fmt.Errorf("no free name for %s in %s after %d candidates", name, destDir, maxCandidates)
}

// statCandidate returns nil info when candidate does not exist.
func (p *Placer) statCandidate(ctx context.Context, candidate string) (os.FileInfo, error) {
	var info os.FileInfo
	err := p.retry(ctx, "stat "+candidate, func() error {
		fi, err := p.fs.Stat(candidate)
		if err != nil {
			info = nil
			if os.IsNotExist(err) {
				return nil
			}
			return Classify("stat candidate", err)
		}
		info = fi
		return nil
	})
	return info, err
}

// claim reserves candidate with an exclusive create and renames the staged
// file over the reservation. An existing candidate is never replaced: claim
// reports false when another writer got there first.
func (p *Placer) claim(ctx context.Context, staged, candidate string) (bool, error) {
	claimed := false
	err := p.retry(ctx, "reserve "+candidate, func() error {
		f, err := p.fs.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return nil
			}
			return classifyDestination("reserve name", err)
		}
		claimed = true
		return f.Close()
	})
	if err != nil || !claimed {
		return false, err
	}

	err = p.retry(ctx, "rename "+candidate, func() error {
		if err := p.fs.Rename(staged, candidate); err != nil {
			return classifyDestination("rename into place", err)
		}
		return nil
	})
	if err != nil {
		_ = p.fs.Remove(candidate)
		return false, err
	}
	return true, nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type destWriter struct{ w io.Writer }

func (d *destWriter) Write(b []byte) (int, error) {
	n, err := d.w.Write(b)
	if err != nil {
		return n, &destinationError{err: err}
	}
	return n, nil
}

type fileSource struct {
	fs   afero.Fs
	path string
}

func (s *fileSource) WriteTo(w io.Writer) (int64, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// BytesSource adapts an in-memory payload to io.WriterTo.
type BytesSource []byte

func (b BytesSource) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(b).WriteTo(w)
}
