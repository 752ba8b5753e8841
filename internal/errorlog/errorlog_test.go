package errorlog

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/altafino/docflow/internal/models"
	"github.com/altafino/docflow/internal/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEntriesFromRecords(t *testing.T) {
	at := []models.AttachmentRecord{
		{OriginalName: "a.pdf", Outcome: models.OutcomeSaved},
		{OriginalName: "b.pdf", MessageID: "<m1>", Subject: "Factura", Outcome: models.OutcomeErrored, Error: "busy"},
		{MessageID: "<m2>", Outcome: models.OutcomeErrored, Error: "unreadable"},
	}
	entries := AttachmentEntries(at)
	require.Len(t, entries, 2)
	assert.Equal(t, "b.pdf", entries[0].Item)
	assert.Equal(t, "busy", entries[0].ErrorMsg)
	assert.Equal(t, "<m2>", entries[1].Item, "message id stands in for a missing name")

	cl := ClassificationEntries([]models.ClassificationRecord{
		{SourcePath: "/docs/x.pdf", Outcome: models.OutcomeErrored, Error: "locked"},
		{SourcePath: "/docs/y.pdf", Outcome: models.OutcomeSaved},
	})
	require.Len(t, cl, 1)
	assert.Equal(t, "/docs/x.pdf", cl[0].Item)
}

func TestFileLogger(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	fl, err := NewFileLogger(fs, "/errors", 30, quietLogger())
	require.NoError(t, err)
	fl.now = fixedClock(now)

	require.NoError(t, fl.LogError(Entry{JobID: "facturas", RunID: "r1", Item: "a.pdf"}))
	require.NoError(t, fl.LogError(Entry{JobID: "facturas", RunID: "r2", Item: "b.pdf"}))
	require.NoError(t, fl.LogError(Entry{JobID: "contratos", RunID: "r3", Item: "c.pdf"}))

	exists, err := afero.Exists(fs, "/errors/errors_facturas_2024-03-09.json")
	require.NoError(t, err)
	assert.True(t, exists)

	all, err := fl.GetErrors(nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, e := range all {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, now, e.ErrorTime)
	}

	got, err := fl.GetErrors(map[string]string{"job_id": "facturas", "run_id": "r2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b.pdf", got[0].Item)
}

func TestFileLoggerCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	fl, err := NewFileLogger(fs, "/errors", 7, quietLogger())
	require.NoError(t, err)

	fl.now = fixedClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, fl.LogError(Entry{JobID: "facturas", Item: "old.pdf"}))
	fl.now = fixedClock(time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC))
	require.NoError(t, fl.LogError(Entry{JobID: "facturas", Item: "new.pdf"}))

	require.NoError(t, fl.CleanupOldErrors())

	left, err := fl.GetErrors(nil)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new.pdf", left[0].Item)
}

func TestManagerLogRun(t *testing.T) {
	cfg := &types.Config{}
	cfg.Meta.ID = "facturas"

	disabled, err := NewManager(cfg, quietLogger())
	require.NoError(t, err)
	require.NoError(t, disabled.LogRun("r1", "extraction", []Entry{{Item: "a.pdf"}}))

	fl, err := NewFileLogger(afero.NewMemMapFs(), "/errors", 30, quietLogger())
	require.NoError(t, err)
	m := NewManagerWithLogger(cfg, fl, quietLogger())

	require.NoError(t, m.LogRun("r1", "extraction", []Entry{{Item: "a.pdf"}, {Item: "b.pdf"}}))
	got, err := m.GetErrors(map[string]string{"engine": "extraction"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "facturas", got[0].JobID)
	assert.Equal(t, "r1", got[1].RunID)
}
