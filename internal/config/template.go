package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/altafino/docflow/internal/types"
	yaml "gopkg.in/yaml.v3"
)

// Templates are partial job configs that jobs inherit from through
// meta.template.
type Templates struct {
	templates map[string]*types.Config
}

// LoadTemplates loads every .yaml file of templatesDir. A missing directory
// yields an empty set.
func LoadTemplates(templatesDir string) (*Templates, error) {
	tm := &Templates{templates: make(map[string]*types.Config)}

	entries, err := os.ReadDir(templatesDir)
	if errors.Is(err, os.ErrNotExist) {
		return tm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		template, err := loadTemplate(filepath.Join(templatesDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", entry.Name(), err)
		}
		tm.templates[strings.TrimSuffix(entry.Name(), ".yaml")] = template
	}
	return tm, nil
}

func loadTemplate(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	template := &types.Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), template); err != nil {
		return nil, err
	}
	return template, nil
}

// Apply merges the named template under cfg. Values set in cfg win.
func (tm *Templates) Apply(cfg *types.Config, name string) error {
	template, exists := tm.templates[name]
	if !exists {
		return fmt.Errorf("template %s not found", name)
	}

	base := &types.Config{}
	if err := mergo.Merge(base, template); err != nil {
		return fmt.Errorf("failed to copy template: %w", err)
	}
	if err := mergo.Merge(base, cfg, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config with template: %w", err)
	}

	*cfg = *base
	return nil
}
