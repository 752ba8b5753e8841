package errorlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const dayLayout = "2006-01-02"

// FileLogger appends entries to one JSON file per job and day
type FileLogger struct {
	fs            afero.Fs
	logger        *slog.Logger
	storagePath   string
	retentionDays int
	now           func() time.Time
	mu            sync.Mutex
}

// NewFileLogger creates a new file-based error logger
func NewFileLogger(fs afero.Fs, storagePath string, retentionDays int, logger *slog.Logger) (*FileLogger, error) {
	if err := fs.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}

	return &FileLogger{
		fs:            fs,
		logger:        logger,
		storagePath:   storagePath,
		retentionDays: retentionDays,
		now:           time.Now,
	}, nil
}

// LogError appends e to errors_<job>_<date>.json
func (f *FileLogger) LogError(e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ErrorTime.IsZero() {
		e.ErrorTime = f.now().UTC()
	}

	filename := fmt.Sprintf("errors_%s_%s.json", e.JobID, f.now().UTC().Format(dayLayout))
	filePath := filepath.Join(f.storagePath, filename)

	var entries []Entry
	data, err := afero.ReadFile(f.fs, filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read error log file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			f.logger.Warn("error log file exists but couldn't be parsed, creating new file",
				"file", filePath,
				"error", err)
			entries = nil
		}
	}

	entries = append(entries, e)
	data, err = json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error log: %w", err)
	}
	if err := afero.WriteFile(f.fs, filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write error log file: %w", err)
	}

	f.logger.Debug("logged document error",
		"error_id", e.ID,
		"item", e.Item,
		"run_id", e.RunID,
		"file", filePath)
	return nil
}

// GetErrors reads every error file and keeps entries matching all filters.
// Known keys are job_id, run_id, engine and message_id.
func (f *FileLogger) GetErrors(filters map[string]string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	files, err := afero.ReadDir(f.fs, f.storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read error log directory: %w", err)
	}

	var out []Entry
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		filePath := filepath.Join(f.storagePath, file.Name())
		data, err := afero.ReadFile(f.fs, filePath)
		if err != nil {
			f.logger.Warn("failed to read error log file", "file", filePath, "error", err)
			continue
		}
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			f.logger.Warn("failed to parse error log file", "file", filePath, "error", err)
			continue
		}
		for _, e := range entries {
			if matches(e, filters) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func matches(e Entry, filters map[string]string) bool {
	for key, value := range filters {
		var got string
		switch key {
		case "job_id":
			got = e.JobID
		case "run_id":
			got = e.RunID
		case "engine":
			got = e.Engine
		case "message_id":
			got = e.MessageID
		default:
			continue
		}
		if got != value {
			return false
		}
	}
	return true
}

// CleanupOldErrors removes day files older than the retention period.
func (f *FileLogger) CleanupOldErrors() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	retentionDays := f.retentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := f.now().UTC().AddDate(0, 0, -retentionDays)

	files, err := afero.ReadDir(f.fs, f.storagePath)
	if err != nil {
		return fmt.Errorf("failed to read error log directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		// errors_<job>_<YYYY-MM-DD>.json; fall back to the mod time.
		fileDate := file.ModTime()
		base := strings.TrimSuffix(file.Name(), ".json")
		if len(base) >= len(dayLayout) {
			if d, err := time.Parse(dayLayout, base[len(base)-len(dayLayout):]); err == nil {
				fileDate = d
			}
		}

		if fileDate.Before(cutoff) {
			filePath := filepath.Join(f.storagePath, file.Name())
			if err := f.fs.Remove(filePath); err != nil {
				f.logger.Warn("failed to delete old error log file", "file", filePath, "error", err)
				continue
			}
			f.logger.Debug("deleted old error log file", "file", filePath)
		}
	}
	return nil
}

func (f *FileLogger) Close() error {
	return nil
}
