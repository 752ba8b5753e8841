package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// FileStorage keeps the run history in one JSON file
type FileStorage struct {
	fs          afero.Fs
	basePath    string
	recordsPath string
	mu          sync.RWMutex
	initialized bool
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(fs afero.Fs, basePath string) (*FileStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	return &FileStorage{
		fs:          fs,
		basePath:    basePath,
		recordsPath: filepath.Join(basePath, "run_history.json"),
	}, nil
}

// Initialize prepares the storage for use
func (s *FileStorage) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	exists, err := afero.Exists(s.fs, s.recordsPath)
	if err != nil {
		return fmt.Errorf("failed to check records file: %w", err)
	}
	if !exists {
		if err := s.saveRecords([]RunRecord{}); err != nil {
			return fmt.Errorf("failed to create records file: %w", err)
		}
	}

	s.initialized = true
	return nil
}

func (s *FileStorage) Close() error {
	return nil
}

func (s *FileStorage) AddRecord(_ context.Context, record RunRecord) error {
	if !s.initialized {
		return ErrStorageNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadRecordsLocked()
	if err != nil {
		return err
	}
	return s.saveRecords(append(records, record))
}

func (s *FileStorage) GetRecords(_ context.Context, filter Filter) ([]RunRecord, error) {
	if !s.initialized {
		return nil, ErrStorageNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.loadRecordsLocked()
	if err != nil {
		return nil, err
	}

	var out []RunRecord
	for _, r := range records {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *FileStorage) CleanupOldRecords(_ context.Context, retentionDays int) error {
	if !s.initialized {
		return ErrStorageNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadRecordsLocked()
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	kept := make([]RunRecord, 0, len(records))
	for _, r := range records {
		if r.StartedAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return s.saveRecords(kept)
}

// loadRecordsLocked loads all records from the file (assumes lock is held)
func (s *FileStorage) loadRecordsLocked() ([]RunRecord, error) {
	data, err := afero.ReadFile(s.fs, s.recordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}
	if len(data) == 0 {
		return []RunRecord{}, nil
	}

	var records []RunRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse records file: %w", err)
	}
	return records, nil
}

func (s *FileStorage) saveRecords(records []RunRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize records: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.recordsPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write records file: %w", err)
	}
	return nil
}
