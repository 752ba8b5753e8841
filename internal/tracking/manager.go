package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/altafino/docflow/internal/types"
)

// Manager records run history for one job
type Manager struct {
	cfg     *types.Config
	logger  *slog.Logger
	storage Storage
	mu      sync.Mutex
}

// NewManager creates a new tracking manager. When tracking is disabled the
// manager accepts records and drops them.
func NewManager(cfg *types.Config, logger *slog.Logger) (*Manager, error) {
	if !cfg.Tracking.Enabled {
		logger.Debug("run tracking is disabled")
		return &Manager{cfg: cfg, logger: logger}, nil
	}

	storage, err := NewStorage(cfg.Tracking.StorageType, cfg.Tracking.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking storage: %w", err)
	}
	return NewManagerWithStorage(cfg, storage, logger)
}

// NewManagerWithStorage initializes storage and wraps it.
func NewManagerWithStorage(cfg *types.Config, storage Storage, logger *slog.Logger) (*Manager, error) {
	if err := storage.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracking storage: %w", err)
	}

	logger.Debug("initialized run tracking",
		"storage_type", cfg.Tracking.StorageType,
		"storage_path", cfg.Tracking.StoragePath)

	return &Manager{cfg: cfg, logger: logger, storage: storage}, nil
}

// Close cleans up resources
func (m *Manager) Close() error {
	if m.storage != nil {
		return m.storage.Close()
	}
	return nil
}

// TrackRun stores a finished run.
func (m *Manager) TrackRun(ctx context.Context, record RunRecord) error {
	if m.storage == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.JobID == "" {
		record.JobID = m.cfg.Meta.ID
	}
	if err := m.storage.AddRecord(ctx, record); err != nil {
		m.logger.Error("failed to track run", "run_id", record.RunID, "error", err)
		return err
	}

	m.logger.Debug("tracked run",
		"run_id", record.RunID,
		"job_id", record.JobID,
		"state", record.State)
	return nil
}

// Runs returns recorded runs, newest first.
func (m *Manager) Runs(ctx context.Context, filter Filter) ([]RunRecord, error) {
	if m.storage == nil {
		return nil, nil
	}
	return m.storage.GetRecords(ctx, filter)
}

// CleanupOldRecords removes records older than the retention period
func (m *Manager) CleanupOldRecords(ctx context.Context) error {
	if m.storage == nil || m.cfg.Tracking.RetentionDays <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.CleanupOldRecords(ctx, m.cfg.Tracking.RetentionDays); err != nil {
		m.logger.Error("failed to clean up old records", "error", err)
		return err
	}

	m.logger.Info("cleaned up old run records",
		"retention_days", m.cfg.Tracking.RetentionDays)
	return nil
}
