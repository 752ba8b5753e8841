package errorlog

import (
	"fmt"
	"log/slog"

	"github.com/altafino/docflow/internal/types"
	"github.com/spf13/afero"
)

// Manager handles error logging for one job
type Manager struct {
	cfg    *types.Config
	logger *slog.Logger
	impl   Logger
}

// NewManager creates a new error logging manager
func NewManager(cfg *types.Config, logger *slog.Logger) (*Manager, error) {
	if !cfg.ErrorLogging.Enabled {
		logger.Debug("error logging is disabled")
		return &Manager{cfg: cfg, logger: logger, impl: noopLogger{}}, nil
	}

	impl, err := NewFileLogger(afero.NewOsFs(), cfg.ErrorLogging.StoragePath, cfg.ErrorLogging.RetentionDays, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize error logger: %w", err)
	}
	return NewManagerWithLogger(cfg, impl, logger), nil
}

func NewManagerWithLogger(cfg *types.Config, impl Logger, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger, impl: impl}
}

// LogRun records every entry under the given run. It keeps going after a
// failed write and returns the first error.
func (m *Manager) LogRun(runID, engineName string, entries []Entry) error {
	var first error
	for _, e := range entries {
		e.RunID = runID
		e.Engine = engineName
		if e.JobID == "" {
			e.JobID = m.cfg.Meta.ID
		}
		if err := m.impl.LogError(e); err != nil {
			m.logger.Error("failed to log document error", "item", e.Item, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	if len(entries) > 0 {
		m.logger.Info("document errors logged", "run_id", runID, "count", len(entries))
	}
	return first
}

// GetErrors retrieves errors based on filters
func (m *Manager) GetErrors(filters map[string]string) ([]Entry, error) {
	return m.impl.GetErrors(filters)
}

// CleanupOldErrors removes errors older than the retention period
func (m *Manager) CleanupOldErrors() error {
	return m.impl.CleanupOldErrors()
}

// Close releases any resources used by the logger
func (m *Manager) Close() error {
	return m.impl.Close()
}

// noopLogger is used when error logging is disabled
type noopLogger struct{}

func (noopLogger) LogError(Entry) error                          { return nil }
func (noopLogger) GetErrors(map[string]string) ([]Entry, error) { return nil, nil }
func (noopLogger) CleanupOldErrors() error                       { return nil }
func (noopLogger) Close() error                                  { return nil }
