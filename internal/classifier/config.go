package classifier

import (
	"strings"
	"time"

	"github.com/altafino/docflow/internal/engine"
)

// Mode selects whether routed documents are copied or moved.
type Mode string

const (
	ModeCopy Mode = "copy"
	ModeMove Mode = "move"
)

// Default subfolder names.
const (
	DefaultSignedDir    = "firmado"
	DefaultUnsignedDir  = "no_firmado"
	DefaultUnmatchedDir = "unmatched"
)

// Config is the classification request.
type Config struct {
	SourceDir      string
	DestinationDir string

	// PatronesFirmado are checked before PatronesNoFirmado; the first
	// case-insensitive substring match of a file name decides.
	PatronesFirmado   []string
	PatronesNoFirmado []string

	// CrearSubcarpetas creates the category subfolders, including the one
	// for unmatched documents. Without it the signed and unsigned
	// subfolders must exist and unmatched documents stay where they are.
	CrearSubcarpetas bool
	Mode             Mode

	SignedDir    string
	UnsignedDir  string
	UnmatchedDir string

	MaxIntentos int
	Timeout     time.Duration

	RunLog bool
}

func (c Config) validate() (Config, error) {
	if strings.TrimSpace(c.SourceDir) == "" {
		return c, engine.Invalid("source_dir", "is required")
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

	switch Mode(strings.ToLower(string(c.Mode))) {
	case "", ModeCopy:
		c.Mode = ModeCopy
	case ModeMove:
		c.Mode = ModeMove
	default:
		return c, engine.Invalid("mode", "must be copy or move")
	}

	dirs := []struct {
		field string
		value *string
		def   string
	}{
		{"signed_dir", &c.SignedDir, DefaultSignedDir},
		{"unsigned_dir", &c.UnsignedDir, DefaultUnsignedDir},
		{"unmatched_dir", &c.UnmatchedDir, DefaultUnmatchedDir},
	}
	for _, d := range dirs {
		*d.value = strings.TrimSpace(*d.value)
		if *d.value == "" {
			*d.value = d.def
		}
		if strings.ContainsAny(*d.value, `/\`) || *d.value == "." || *d.value == ".." {
			return c, engine.Invalid(d.field, "must be a plain folder name")
		}
	}

	c.PatronesFirmado = normalise(c.PatronesFirmado)
	c.PatronesNoFirmado = normalise(c.PatronesNoFirmado)
	return c, nil
}

func normalise(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
