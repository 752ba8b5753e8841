package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/altafino/docflow/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json", false)

	l.Info("hidden")
	l.Warn("shown", "file", "a.pdf")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "a.pdf", line["file"])
}

func TestNewDev(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "dev", false).Info("run finished", "state", "COMPLETED")
	assert.Contains(t, buf.String(), "run finished")
}

func TestSetupFile(t *testing.T) {
	cfg := &types.Config{}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(t.TempDir(), "logs", "docflow.log")

	l, err := Setup(cfg)
	require.NoError(t, err)
	l.Info("hello", "job", "facturas")

	data, err := os.ReadFile(cfg.Logging.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job=facturas")
}
