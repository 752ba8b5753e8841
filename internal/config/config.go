package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/altafino/docflow/internal/types"
	"github.com/altafino/docflow/internal/validation"
	yaml "gopkg.in/yaml.v3"
)

// ConfigStore holds the loaded jobs by id
type ConfigStore struct {
	configs map[string]*types.Config
}

var (
	storeMu     sync.RWMutex
	globalStore *ConfigStore
	logger      *slog.Logger
)

// InitLogger sets up the logger for the config package
func InitLogger(l *slog.Logger) {
	logger = l
}

// LoadConfigs loads every *.config.yaml of configDir, applies templates from
// configDir/templates and defaults, and validates the result. The previous
// store stays in place when anything fails.
func LoadConfigs(configDir string) error {
	if logger == nil {
		logger = slog.Default()
	}

	templates, err := LoadTemplates(filepath.Join(configDir, "templates"))
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	entries, err := os.ReadDir(configDir)
	if err != nil {
		return fmt.Errorf("failed to read config directory: %w", err)
	}

	store := &ConfigStore{configs: make(map[string]*types.Config)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".config.yaml") {
			continue
		}

		cfg, err := loadSingleConfig(filepath.Join(configDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", entry.Name(), err)
		}

		if cfg.Meta.ID == "" {
			return fmt.Errorf("config %s missing required meta.id field", entry.Name())
		}
		if _, exists := store.configs[cfg.Meta.ID]; exists {
			return fmt.Errorf("duplicate config ID %s in %s", cfg.Meta.ID, entry.Name())
		}

		if cfg.Meta.Template != "" {
			if err := templates.Apply(cfg, cfg.Meta.Template); err != nil {
				return fmt.Errorf("failed to apply template to config %s: %w", entry.Name(), err)
			}
		}
		ApplyDefaults(cfg)

		if err := validation.ValidateConfig(cfg); err != nil {
			return fmt.Errorf("invalid config %s: %w", entry.Name(), err)
		}

		store.configs[cfg.Meta.ID] = cfg
		logger.Debug("loaded configuration",
			"id", cfg.Meta.ID,
			"kind", cfg.Kind,
			"enabled", cfg.Meta.Enabled,
		)
	}

	storeMu.Lock()
	globalStore = store
	storeMu.Unlock()
	return nil
}

func loadSingleConfig(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	cfg := &types.Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with the values a job runs with when the
// file does not say otherwise.
func ApplyDefaults(cfg *types.Config) {
	if cfg.MailStore.Type == "" {
		cfg.MailStore.Type = types.MailStoreEML
	}
	if cfg.MailStore.Timeout == 0 {
		cfg.MailStore.Timeout = 30
	}
	if cfg.Retry.MaxIntentos == 0 {
		cfg.Retry.MaxIntentos = 3
	}
	if cfg.Retry.Timeout == 0 {
		cfg.Retry.Timeout = 2
	}
	if cfg.Classify.Mode == "" {
		cfg.Classify.Mode = "copy"
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = "json"
	}
	if cfg.Tracking.StorageType == "" {
		cfg.Tracking.StorageType = "file"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// ErrNotLoaded is returned before the first successful LoadConfigs.
var ErrNotLoaded = errors.New("config store not initialized")

// GetConfig retrieves a configuration by ID
func GetConfig(id string) (*types.Config, error) {
	storeMu.RLock()
	defer storeMu.RUnlock()

	if globalStore == nil {
		return nil, ErrNotLoaded
	}
	cfg, exists := globalStore.configs[id]
	if !exists {
		return nil, fmt.Errorf("config with ID %s not found", id)
	}
	return cfg, nil
}

// SetConfig adds or replaces a single configuration.
func SetConfig(cfg *types.Config) {
	storeMu.Lock()
	defer storeMu.Unlock()

	if globalStore == nil {
		globalStore = &ConfigStore{configs: make(map[string]*types.Config)}
	}
	globalStore.configs[cfg.Meta.ID] = cfg
}

// ListConfigs returns all configurations ordered by id
func ListConfigs() []*types.Config {
	storeMu.RLock()
	defer storeMu.RUnlock()

	if globalStore == nil {
		return nil
	}
	configs := make([]*types.Config, 0, len(globalStore.configs))
	for _, cfg := range globalStore.configs {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Meta.ID < configs[j].Meta.ID })
	return configs
}

// GetEnabledConfigs returns only enabled configurations
func GetEnabledConfigs() []*types.Config {
	var configs []*types.Config
	for _, cfg := range ListConfigs() {
		if cfg.Meta.Enabled {
			configs = append(configs, cfg)
		}
	}
	return configs
}
