package fileops

import (
	"context"
	"os"
	"io"
	"sort"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlacer(fs afero.Fs, attempts int) *Placer {
	return NewPlacer(fs, RetryPolicy{MaxAttempts: attempts, Delay: time.Millisecond}, nil)
}

func listNames(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names
}

func TestPlaceResolvesCollisionsByContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := newPlacer(fs, 1)
	tok := engine.NewToken(context.Background())

	first, err := p.Place(tok, BytesSource("alpha"), "/out", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSaved, first.Outcome)
	assert.Equal(t, "/out/a.pdf", first.Path)
	assert.Equal(t, int64(5), first.Size)
	assert.Equal(t, HashBytes([]byte("alpha")), first.Hash)

	dup, err := p.Place(tok, BytesSource("alpha"), "/out", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkippedDuplicate, dup.Outcome)
	assert.Equal(t, "/out/a.pdf", dup.Path)

	other, err := p.Place(tok, BytesSource("bravo"), "/out", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRenamed, other.Outcome)
	assert.Equal(t, "/out/a (1).pdf", other.Path)

	// A second pass over the same inputs creates nothing new.
	again, err := p.Place(tok, BytesSource("bravo"), "/out", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkippedDuplicate, again.Outcome)
	assert.Equal(t, "/out/a (1).pdf", again.Path)

	assert.Equal(t, []string{"a (1).pdf", "a.pdf"}, listNames(t, fs, "/out"))

	data, err := afero.ReadFile(fs, "/out/a (1).pdf")
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))
}

func TestPlaceSameSizeDifferentContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := newPlacer(fs, 1)
	tok := engine.NewToken(context.Background())

	_, err := p.Place(tok, BytesSource("1111"), "/out", "doc")
	require.NoError(t, err)
	pl, err := p.Place(tok, BytesSource("2222"), "/out", "doc")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRenamed, pl.Outcome)
	assert.Equal(t, "/out/doc (1)", pl.Path)
}

type faultFs struct {
	afero.Fs
	mu       sync.Mutex
	failures int
	err      error
	creates  int
}

func (f *faultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 && strings.HasSuffix(name, ".part") {
		f.mu.Lock()
		f.creates++
		fail := f.failures != 0
		if f.failures > 0 {
			f.failures--
		}
		f.mu.Unlock()
		if fail {
			return nil, &os.PathError{Op: "open", Path: name, Err: f.err}
		}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestPlaceRetriesRecoverableErrors(t *testing.T) {
	t.Run("succeeds on last attempt", func(t *testing.T) {
		fs := &faultFs{Fs: afero.NewMemMapFs(), failures: 2, err: syscall.EBUSY}
		p := newPlacer(fs, 3)

		pl, err := p.Place(engine.NewToken(context.Background()), BytesSource("x"), "/out", "a.txt")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSaved, pl.Outcome)
		assert.Equal(t, 3, fs.creates)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		fs := &faultFs{Fs: afero.NewMemMapFs(), failures: 3, err: syscall.EBUSY}
		p := newPlacer(fs, 3)

		_, err := p.Place(engine.NewToken(context.Background()), BytesSource("x"), "/out", "a.txt")
		require.Error(t, err)
		assert.True(t, engine.IsRecoverable(err))
		assert.False(t, engine.IsStructural(err))
		assert.Equal(t, 3, fs.creates)
	})
}

func TestPlaceStructuralErrors(t *testing.T) {
	t.Run("no space", func(t *testing.T) {
		fs := &faultFs{Fs: afero.NewMemMapFs(), failures: -1, err: syscall.ENOSPC}
		p := newPlacer(fs, 3)

		_, err := p.Place(engine.NewToken(context.Background()), BytesSource("x"), "/out", "a.txt")
		require.Error(t, err)
		assert.True(t, engine.IsStructural(err))
		assert.Equal(t, 1, fs.creates)
	})

	t.Run("read-only destination", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("/out", 0o755))
		p := newPlacer(afero.NewReadOnlyFs(base), 3)

		err := p.Prepare("/out/sub")
		assert.True(t, engine.IsStructural(err))

		_, err = p.Place(engine.NewToken(context.Background()), BytesSource("x"), "/out", "a.txt")
		assert.True(t, engine.IsStructural(err))
	})
}

func TestRetryWaitObservesCancellation(t *testing.T) {
	fs := &faultFs{Fs: afero.NewMemMapFs(), failures: -1, err: syscall.EBUSY}
	p := NewPlacer(fs, RetryPolicy{MaxAttempts: 5, Delay: 10 * time.Second}, nil)
	tok := engine.NewToken(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		tok.Cancel()
	}()

	start := time.Now()
	_, err := p.Place(tok, BytesSource("x"), "/out", "a.txt")
	assert.ErrorIs(t, err, engine.ErrCancelled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// cancellingSource cancels tok after writing the first half of data.
type cancellingSource struct {
	tok  *engine.Token
	data []byte
}

func (s cancellingSource) WriteTo(w io.Writer) (int64, error) {
	half := len(s.data) / 2
	n, err := w.Write(s.data[:half])
	if err != nil {
		return int64(n), err
	}
	s.tok.Cancel()
	m, err := w.Write(s.data[half:])
	return int64(n + m), err
}

func TestCancelDuringWriteFinishesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := newPlacer(fs, 3)
	tok := engine.NewToken(context.Background())

	pl, err := p.Place(tok, cancellingSource{tok: tok, data: []byte("complete content")}, "/out", "a.pdf")
	require.NoError(t, err)
	assert.True(t, tok.Cancelled())
	assert.Equal(t, models.OutcomeSaved, pl.Outcome)
	assert.Equal(t, "/out/a.pdf", pl.Path)

	data, err := afero.ReadFile(fs, "/out/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "complete content", string(data))
	assert.Equal(t, []string{"a.pdf"}, listNames(t, fs, "/out"))

	// Nothing new starts once cancelled.
	_, err = p.Place(tok, BytesSource("later"), "/out", "b.pdf")
	assert.ErrorIs(t, err, engine.ErrCancelled)
	assert.Equal(t, []string{"a.pdf"}, listNames(t, fs, "/out"))
}

// lateCreateFs hides one path from Stat once, as if another writer created
// it between the check and the rename.
type lateCreateFs struct {
	afero.Fs
	mu     sync.Mutex
	hidden string
}

func (f *lateCreateFs) Stat(name string) (os.FileInfo, error) {
	f.mu.Lock()
	hide := name == f.hidden
	if hide {
		f.hidden = ""
	}
	f.mu.Unlock()
	if hide {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
	}
	return f.Fs.Stat(name)
}

func TestPlaceNeverReplacesLateFile(t *testing.T) {
	t.Run("different content takes next name", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(base, "/out/a.pdf", []byte("external"), 0o644))
		p := newPlacer(&lateCreateFs{Fs: base, hidden: "/out/a.pdf"}, 1)

		pl, err := p.Place(engine.NewToken(context.Background()), BytesSource("ours"), "/out", "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeRenamed, pl.Outcome)
		assert.Equal(t, "/out/a (1).pdf", pl.Path)

		data, err := afero.ReadFile(base, "/out/a.pdf")
		require.NoError(t, err)
		assert.Equal(t, "external", string(data))
		assert.Equal(t, []string{"a (1).pdf", "a.pdf"}, listNames(t, base, "/out"))
	})

	t.Run("same content is a duplicate", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(base, "/out/a.pdf", []byte("ours"), 0o644))
		p := newPlacer(&lateCreateFs{Fs: base, hidden: "/out/a.pdf"}, 1)

		pl, err := p.Place(engine.NewToken(context.Background()), BytesSource("ours"), "/out", "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSkippedDuplicate, pl.Outcome)
		assert.Equal(t, []string{"a.pdf"}, listNames(t, base, "/out"))
	})
}

type renameHookFs struct {
	afero.Fs
	onRename func()
}

func (f *renameHookFs) Rename(oldname, newname string) error {
	f.onRename()
	return f.Fs.Rename(oldname, newname)
}

func TestPlaceFile(t *testing.T) {
	t.Run("copy keeps source", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/src/a.pdf", []byte("data"), 0o644))
		p := newPlacer(fs, 1)

		pl, err := p.PlaceFile(engine.NewToken(context.Background()), "/src/a.pdf", "/src/firmado", false)
		require.NoError(t, err)
		assert.Equal(t, "/src/firmado/a.pdf", pl.Path)
		ok, _ := afero.Exists(fs, "/src/a.pdf")
		assert.True(t, ok)
	})

	t.Run("move removes source", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/src/a.pdf", []byte("data"), 0o644))
		p := newPlacer(fs, 1)

		pl, err := p.PlaceFile(engine.NewToken(context.Background()), "/src/a.pdf", "/dst", true)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSaved, pl.Outcome)
		ok, _ := afero.Exists(fs, "/src/a.pdf")
		assert.False(t, ok)
	})

	t.Run("move of duplicate leaves source", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/src/a.pdf", []byte("data"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/dst/a.pdf", []byte("data"), 0o644))
		p := newPlacer(fs, 1)

		pl, err := p.PlaceFile(engine.NewToken(context.Background()), "/src/a.pdf", "/dst", true)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeSkippedDuplicate, pl.Outcome)
		ok, _ := afero.Exists(fs, "/src/a.pdf")
		assert.True(t, ok)
	})

	t.Run("move finishes after cancel", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(base, "/src/a.pdf", []byte("data"), 0o644))
		tok := engine.NewToken(context.Background())
		p := newPlacer(&renameHookFs{Fs: base, onRename: tok.Cancel}, 1)

		pl, err := p.PlaceFile(tok, "/src/a.pdf", "/dst", true)
		require.NoError(t, err)
		assert.Equal(t, "/dst/a.pdf", pl.Path)
		ok, _ := afero.Exists(base, "/src/a.pdf")
		assert.False(t, ok)
		ok, _ = afero.Exists(base, "/dst/a.pdf")
		assert.True(t, ok)
	})

	t.Run("missing source is a record error", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		p := newPlacer(fs, 2)

		_, err := p.PlaceFile(engine.NewToken(context.Background()), "/src/gone.pdf", "/dst", false)
		require.Error(t, err)
		assert.False(t, engine.IsStructural(err))
		ok, _ := afero.Exists(fs, "/dst/gone.pdf")
		assert.False(t, ok)
	})
}

func TestPrepareCreatesDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := newPlacer(fs, 1)
	require.NoError(t, p.Prepare("/a/b/c"))
	assert.Empty(t, listNames(t, fs, "/a/b/c"))
}
