package extractor

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/altafino/docflow/internal/engine"
)

// Config is the extraction request.
type Config struct {
	// SearchPhrases are OR-matched, case-insensitively, against subject or
	// body. Empty matches every message.
	SearchPhrases []string
	// DateStart and DateEnd are inclusive whole days; nil leaves that side
	// open.
	DateStart *time.Time
	DateEnd   *time.Time

	SourceFolder   string
	DestinationDir string

	MaxIntentos int
	Timeout     time.Duration

	// RunLog leaves a log file of the run in DestinationDir.
	RunLog bool
}

// locator is implemented by stores whose folders live on the local
// filesystem.
type locator interface {
	Location(folder string) string
}

func (c Config) validate(store any) (Config, error) {
	if strings.TrimSpace(c.SourceFolder) == "" {
		return c, engine.Invalid("source_folder", "is required")
	}
	if strings.TrimSpace(c.DestinationDir) == "" {
		return c, engine.Invalid("destination_dir", "is required")
	}
	if c.MaxIntentos < 1 {
		return c, engine.Invalid("max_intentos", "must be at least 1")
	}
	if c.Timeout <= 0 {
		return c, engine.Invalid("timeout", "must be positive")
	}
	if c.DateStart != nil && c.DateEnd != nil && c.DateStart.After(*c.DateEnd) {
		return c, engine.Invalid("date_start", "must not be after date_end")
	}

	dest := filepath.Clean(c.DestinationDir)
	if dest == filepath.Clean(c.SourceFolder) {
		return c, engine.Invalid("destination_dir", "must differ from the source folder")
	}
	if l, ok := store.(locator); ok && dest == filepath.Clean(l.Location(c.SourceFolder)) {
		return c, engine.Invalid("destination_dir", "must differ from the source folder")
	}

	phrases := make([]string, 0, len(c.SearchPhrases))
	for _, p := range c.SearchPhrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, strings.ToLower(p))
		}
	}
	c.SearchPhrases = phrases
	return c, nil
}

func matchAny(text string, phrases []string) bool {
	text = strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
