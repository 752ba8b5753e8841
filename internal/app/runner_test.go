package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/errorlog"
	"github.com/altafino/docflow/internal/models"
	"github.com/altafino/docflow/internal/testutil"
	"github.com/altafino/docflow/internal/tracking"
	"github.com/altafino/docflow/internal/types"
	"github.com/altafino/docflow/internal/worker"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func extractJob(t *testing.T) *types.Config {
	cfg := &types.Config{}
	cfg.Meta.ID = "facturas"
	cfg.Meta.Name = "Facturas"
	cfg.Kind = types.KindExtract
	cfg.Extract.SearchPhrases = []string{"factura"}
	cfg.Extract.SourceFolder = "Inbox"
	cfg.Extract.DestinationDir = "/out"
	cfg.MailStore.Type = types.MailStoreEML
	cfg.MailStore.Root = "/mail"
	cfg.Retry.MaxIntentos = 2
	cfg.Retry.Timeout = 1
	cfg.Report.Enabled = true
	cfg.Report.Format = "json,csv"
	cfg.Tracking.Enabled = true
	cfg.Tracking.StorageType = "sqlite"
	cfg.Tracking.StoragePath = filepath.Join(t.TempDir(), "history")
	cfg.ErrorLogging.Enabled = true
	cfg.ErrorLogging.StoragePath = filepath.Join(t.TempDir(), "errors")
	return cfg
}

func classifyJob() *types.Config {
	cfg := &types.Config{}
	cfg.Meta.ID = "contratos"
	cfg.Kind = types.KindClassify
	cfg.Classify.SourceDir = "/in"
	cfg.Classify.DestinationDir = "/in"
	cfg.Classify.PatronesFirmado = []string{"firmado"}
	cfg.Classify.PatronesNoFirmado = []string{"borrador"}
	cfg.Classify.CrearSubcarpetas = true
	cfg.Retry.MaxIntentos = 1
	cfg.Retry.Timeout = 1
	cfg.Report.Enabled = true
	cfg.Report.Dir = "/reports"
	return cfg
}

func seedMail(t *testing.T, fs afero.Fs) {
	msgs := []testutil.Message{
		{
			ID:          "m1@example.com",
			Subject:     "Factura marzo",
			Date:        time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			Body:        "adjunto",
			Attachments: []testutil.Attachment{{Name: "marzo.pdf", Type: "application/pdf", Data: []byte("pdf-1")}},
		},
		{
			ID:          "m2@example.com",
			Subject:     "Hola",
			Date:        time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
			Body:        "nada que ver",
			Attachments: []testutil.Attachment{{Name: "foto.jpg", Type: "image/jpeg", Data: []byte("jpg")}},
		},
	}
	for _, m := range msgs {
		require.NoError(t, afero.WriteFile(fs, "/mail/Inbox/"+m.ID+".eml", testutil.RawMessage(m), 0o644))
	}
}

func TestExtractJobOnLoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedMail(t, fs)
	cfg := extractJob(t)
	runner := NewRunner(fs, quietLogger())

	loop := worker.NewLoop()
	var phases []engine.Phase
	job, err := runner.Start(context.Background(), cfg, loop, Listeners{
		Extract: worker.Listener[models.AttachmentRecord]{
			OnPhaseChange: func(p engine.Phase) { phases = append(phases, p) },
		},
	})
	require.NoError(t, err)

	stop := make(chan struct{})
	go func() {
		<-job.Done()
		close(stop)
	}()
	loop.Run(stop)

	summary, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, summary.State)
	assert.Equal(t, 1, summary.Counts.Processed)
	assert.NotEmpty(t, phases)

	saved, err := afero.Exists(fs, "/out/marzo.pdf")
	require.NoError(t, err)
	assert.True(t, saved)

	require.Len(t, summary.Reports, 2)
	for _, p := range summary.Reports {
		assert.True(t, strings.HasPrefix(p, "/out/lista_documentos_fecha("), p)
	}

	history, err := tracking.NewManager(cfg, quietLogger())
	require.NoError(t, err)
	defer history.Close()
	runs, err := history.Runs(context.Background(), tracking.Filter{JobID: "facturas"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)
	assert.Equal(t, "COMPLETED", runs[0].State)
	assert.Equal(t, "Inbox", runs[0].Source)

	// Waiting again returns the same summary without recording twice.
	again, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, summary, again)
	runs, err = history.Runs(context.Background(), tracking.Filter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestClassifyJob(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/contrato_firmado.pdf", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/in/contrato_borrador.pdf", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/in/notas.txt", []byte("c"), 0o644))

	summary, err := NewRunner(fs, quietLogger()).Run(context.Background(), classifyJob())
	require.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, summary.State)
	assert.Equal(t, 3, summary.Counts.Processed)

	for _, p := range []string{"/in/firmado/contrato_firmado.pdf", "/in/no_firmado/contrato_borrador.pdf", "/in/unmatched/notas.txt"} {
		ok, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}

	require.Len(t, summary.Reports, 1)
	assert.True(t, strings.HasPrefix(summary.Reports[0], "/reports/lista_clasificacion_"))
}

func TestFailedRunIsRecorded(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedMail(t, fs)
	cfg := extractJob(t)
	cfg.Extract.SourceFolder = "Archivo"

	summary, err := NewRunner(fs, quietLogger()).Run(context.Background(), cfg)
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, engine.StateFailed, summary.State)
	assert.Empty(t, summary.Reports)

	history, err := tracking.NewManager(cfg, quietLogger())
	require.NoError(t, err)
	defer history.Close()
	runs, err := history.Runs(context.Background(), tracking.Filter{State: "FAILED"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRecordWritesHistoryAndErrors(t *testing.T) {
	cfg := extractJob(t)
	res := &engine.Result[models.AttachmentRecord]{
		RunID:  "run-1",
		Engine: "extractor",
		State:  engine.StateCompleted,
		Records: []models.AttachmentRecord{
			{MessageID: "m1", OriginalName: "a.pdf", Outcome: models.OutcomeSaved},
			{MessageID: "m2", OriginalName: "b.pdf", Outcome: models.OutcomeErrored, Error: "disk busy"},
		},
		Counts:    engine.Counts{Processed: 1, Errored: 1},
		StartedAt: time.Now(),
	}

	r := NewRunner(afero.NewMemMapFs(), quietLogger())
	r.record(context.Background(), cfg, quietLogger(),
		tracking.NewRunRecord(cfg.Meta.ID, "Inbox", "/out", res),
		errorlog.AttachmentEntries(res.Records))

	em, err := errorlog.NewManager(cfg, quietLogger())
	require.NoError(t, err)
	defer em.Close()
	entries, err := em.GetErrors(map[string]string{"run_id": "run-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.pdf", entries[0].Item)
	assert.Equal(t, "facturas", entries[0].JobID)

	history, err := tracking.NewManager(cfg, quietLogger())
	require.NoError(t, err)
	defer history.Close()
	runs, err := history.Runs(context.Background(), tracking.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Errored)
}

func TestStartErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := NewRunner(fs, quietLogger())

	cfg := extractJob(t)
	_, err := runner.Start(context.Background(), cfg, worker.Direct, Listeners{})
	assert.ErrorContains(t, err, "failed to open mail store")

	seedMail(t, fs)
	cfg.Extract.DestinationDir = ""
	_, err = runner.Start(context.Background(), cfg, worker.Direct, Listeners{})
	var cerr *engine.ConfigurationError
	assert.ErrorAs(t, err, &cerr)

	cfg.Kind = "sort"
	_, err = runner.Start(context.Background(), cfg, worker.Direct, Listeners{})
	assert.ErrorContains(t, err, "unknown kind")
}

func TestFolders(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedMail(t, fs)
	require.NoError(t, fs.MkdirAll("/mail/Archivo/2023", 0o755))

	folders, err := NewRunner(fs, quietLogger()).Folders(context.Background(), extractJob(t))
	require.NoError(t, err)
	assert.Contains(t, folders, "Inbox")
}

func TestExtractConfigDates(t *testing.T) {
	now := time.Date(2024, 3, 9, 15, 30, 0, 0, time.UTC)
	cfg := &types.Config{}
	cfg.Extract.DateStart = "2024-01-01"
	cfg.Extract.DateEnd = "2024-01-31"
	cfg.Retry.MaxIntentos = 3
	cfg.Retry.Timeout = 2

	ec, err := ExtractConfig(cfg, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *ec.DateStart)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *ec.DateEnd)
	assert.Equal(t, 2*time.Second, ec.Timeout)

	cfg.Extract.DateStart, cfg.Extract.DateEnd = "", ""
	cfg.Extract.LastDays = 7
	ec, err = ExtractConfig(cfg, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), *ec.DateStart)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), *ec.DateEnd)

	cfg.Extract.LastDays = 0
	ec, err = ExtractConfig(cfg, now)
	require.NoError(t, err)
	assert.Nil(t, ec.DateStart)
	assert.Nil(t, ec.DateEnd)

	cfg.Extract.DateEnd = "31/01/2024"
	_, err = ExtractConfig(cfg, now)
	assert.Error(t, err)
}

func TestClassifyConfig(t *testing.T) {
	cfg := classifyJob()
	cfg.Classify.Mode = "move"
	cc := ClassifyConfig(cfg)
	assert.Equal(t, "/in", cc.SourceDir)
	assert.EqualValues(t, "move", cc.Mode)
	assert.Equal(t, []string{"firmado"}, cc.PatronesFirmado)
	assert.Equal(t, time.Second, cc.Timeout)
}
