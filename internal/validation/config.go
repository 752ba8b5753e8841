package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/altafino/docflow/internal/report"
	"github.com/altafino/docflow/internal/types"
)

// DateLayout is the format of extract.date_start and extract.date_end.
const DateLayout = "2006-01-02"

// ValidateConfig performs validation on a single configuration
func ValidateConfig(cfg *types.Config) error {
	if err := validateMeta(cfg); err != nil {
		return fmt.Errorf("meta validation failed: %w", err)
	}

	switch cfg.Kind {
	case types.KindExtract:
		if err := validateExtract(cfg); err != nil {
			return fmt.Errorf("extract validation failed: %w", err)
		}
		if err := validateMailStore(cfg); err != nil {
			return fmt.Errorf("mailstore validation failed: %w", err)
		}
	case types.KindClassify:
		if err := validateClassify(cfg); err != nil {
			return fmt.Errorf("classify validation failed: %w", err)
		}
	default:
		return fmt.Errorf("kind must be one of: extract, classify")
	}

	if err := validateRetry(cfg); err != nil {
		return fmt.Errorf("retry validation failed: %w", err)
	}

	if err := validateReport(cfg); err != nil {
		return fmt.Errorf("report validation failed: %w", err)
	}

	if err := validateTracking(cfg); err != nil {
		return fmt.Errorf("tracking validation failed: %w", err)
	}

	if cfg.ErrorLogging.Enabled && cfg.ErrorLogging.StoragePath == "" {
		return fmt.Errorf("error_logging.storage_path is required when error logging is enabled")
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	if err := validateScheduling(cfg); err != nil {
		return fmt.Errorf("scheduling validation failed: %w", err)
	}

	return nil
}

func validateMeta(cfg *types.Config) error {
	if cfg.Meta.ID == "" {
		return fmt.Errorf("meta.id is required")
	}

	if !isValidID(cfg.Meta.ID) {
		return fmt.Errorf("meta.id contains invalid characters (use only alphanumeric, dash, underscore)")
	}

	if cfg.Meta.Name == "" {
		return fmt.Errorf("meta.name is required")
	}

	return nil
}

func validateExtract(cfg *types.Config) error {
	ex := cfg.Extract
	if ex.SourceFolder == "" {
		return fmt.Errorf("extract.source_folder is required")
	}
	if ex.DestinationDir == "" {
		return fmt.Errorf("extract.destination_dir is required")
	}

	var start, end time.Time
	var err error
	if ex.DateStart != "" {
		if start, err = time.Parse(DateLayout, ex.DateStart); err != nil {
			return fmt.Errorf("extract.date_start must be in YYYY-MM-DD format")
		}
	}
	if ex.DateEnd != "" {
		if end, err = time.Parse(DateLayout, ex.DateEnd); err != nil {
			return fmt.Errorf("extract.date_end must be in YYYY-MM-DD format")
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return fmt.Errorf("extract.date_start must not be after date_end")
	}

	if ex.LastDays < 0 {
		return fmt.Errorf("extract.last_days must not be negative")
	}
	if ex.LastDays > 0 && (ex.DateStart != "" || ex.DateEnd != "") {
		return fmt.Errorf("extract.last_days cannot be combined with date_start or date_end")
	}

	return nil
}

func validateClassify(cfg *types.Config) error {
	cl := cfg.Classify
	if cl.SourceDir == "" {
		return fmt.Errorf("classify.source_dir is required")
	}
	if cl.DestinationDir == "" {
		return fmt.Errorf("classify.destination_dir is required")
	}

	switch strings.ToLower(cl.Mode) {
	case "", "copy", "move":
	default:
		return fmt.Errorf("classify.mode must be one of: copy, move")
	}

	for field, dir := range map[string]string{
		"signed_dir":    cl.SignedDir,
		"unsigned_dir":  cl.UnsignedDir,
		"unmatched_dir": cl.UnmatchedDir,
	} {
		if dir != "" && (filepath.Base(dir) != dir || dir == "." || dir == "..") {
			return fmt.Errorf("classify.%s must be a plain folder name", field)
		}
	}

	return nil
}

func validateMailStore(cfg *types.Config) error {
	ms := cfg.MailStore
	switch ms.Type {
	case types.MailStoreEML:
		if ms.Root == "" {
			return fmt.Errorf("mailstore.root is required for type eml")
		}
	case types.MailStoreIMAP:
		if ms.Server == "" {
			return fmt.Errorf("mailstore.server is required for type imap")
		}
		if ms.Port <= 0 || ms.Port > 65535 {
			return fmt.Errorf("mailstore.port must be between 1 and 65535")
		}
		if ms.Username == "" {
			return fmt.Errorf("mailstore.username is required for type imap")
		}
		oa := ms.Security.OAuth2
		if oa.Enabled {
			if oa.Provider == "" || oa.ClientID == "" {
				return fmt.Errorf("mailstore.security.oauth2 needs provider and client_id")
			}
			if oa.TokenStoragePath == "" {
				return fmt.Errorf("mailstore.security.oauth2.token_storage_path is required")
			}
		} else if ms.Password == "" {
			return fmt.Errorf("mailstore.password is required unless oauth2 is enabled")
		}
	default:
		return fmt.Errorf("mailstore.type must be one of: eml, imap")
	}

	if ms.Timeout < 0 {
		return fmt.Errorf("mailstore.timeout must not be negative")
	}
	return nil
}

func validateRetry(cfg *types.Config) error {
	if cfg.Retry.MaxIntentos < 1 {
		return fmt.Errorf("retry.max_intentos must be at least 1")
	}
	if cfg.Retry.Timeout < 1 {
		return fmt.Errorf("retry.timeout must be at least 1 second")
	}
	return nil
}

func validateReport(cfg *types.Config) error {
	if !cfg.Report.Enabled {
		return nil
	}
	if _, err := report.ParseFormats(cfg.Report.Format); err != nil {
		return fmt.Errorf("report.format: %w", err)
	}
	gd := cfg.Report.GDrive
	if gd.Enabled && (gd.CredentialsFile == "" || gd.ParentFolderID == "") {
		return fmt.Errorf("report.gdrive needs credentials_file and parent_folder_id")
	}
	return nil
}

func validateTracking(cfg *types.Config) error {
	if !cfg.Tracking.Enabled {
		return nil
	}

	switch cfg.Tracking.StorageType {
	case "file", "sqlite":
	default:
		return fmt.Errorf("tracking.storage_type must be 'file' or 'sqlite'")
	}

	if cfg.Tracking.StoragePath == "" {
		return fmt.Errorf("tracking.storage_path is required")
	}

	if cfg.Tracking.RetentionDays < 0 {
		return fmt.Errorf("tracking.retention_days must not be negative")
	}

	return nil
}

func validateLogging(cfg *types.Config) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"dev":  true,
	}

	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: text, json, dev")
	}

	validOutputs := map[string]bool{
		"stdout": true,
		"file":   true,
	}

	if !validOutputs[cfg.Logging.Output] {
		return fmt.Errorf("logging.output must be one of: stdout, file")
	}

	if cfg.Logging.Output == "file" && cfg.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when output is 'file'")
	}

	return nil
}

var maxFrequency = map[string]int{
	"minute": 60,
	"hour":   24,
	"day":    31,
	"week":   52,
	"month":  12,
}

func validateScheduling(cfg *types.Config) error {
	sc := cfg.Scheduling
	if !sc.Enabled {
		return nil
	}

	limit, ok := maxFrequency[sc.FrequencyEvery]
	if !ok {
		return fmt.Errorf("scheduling.frequency_every must be one of: minute, hour, day, week, month")
	}
	if sc.FrequencyAmount < 1 {
		return fmt.Errorf("scheduling.frequency_amount must be greater than 0")
	}
	if sc.FrequencyAmount > limit {
		return fmt.Errorf("scheduling.frequency_amount must not exceed %d for %s frequency", limit, sc.FrequencyEvery)
	}

	var startAt time.Time
	if !sc.StartNow {
		if sc.StartAt == "" {
			return fmt.Errorf("scheduling.start_at is required when start_now is false")
		}
		var err error
		if startAt, err = time.Parse(time.RFC3339, sc.StartAt); err != nil {
			return fmt.Errorf("scheduling.start_at must be in RFC3339 format (e.g., 2006-01-02T15:04:05Z)")
		}
	}

	if sc.StopAt != "" {
		stopAt, err := time.Parse(time.RFC3339, sc.StopAt)
		if err != nil {
			return fmt.Errorf("scheduling.stop_at must be in RFC3339 format (e.g., 2006-01-02T15:04:05Z)")
		}
		if !startAt.IsZero() && stopAt.Before(startAt) {
			return fmt.Errorf("scheduling.stop_at must be after start_at")
		}
		if sc.StartNow && stopAt.Before(time.Now().UTC()) {
			return fmt.Errorf("scheduling.stop_at must be in the future when start_now is true")
		}
	}

	return nil
}

func isValidID(id string) bool {
	for _, r := range id {
		if !isValidIDChar(r) {
			return false
		}
	}
	return true
}

func isValidIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' ||
		r == '_'
}
