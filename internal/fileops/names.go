package fileops

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 255

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"\n", "_",
	"\r", "_",
	"\t", "_",
	"\x00", "_",
)

// SanitizeFilename strips path components and characters that are invalid
// on common filesystems. Parentheses and spaces survive so rename suffixes
// stay readable.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = unsafeChars.Replace(name)
	name = strings.TrimSpace(name)
	name = strings.TrimRight(name, ".")

	if name == "" || name == "." || name == "/" {
		return "attachment"
	}

	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) >= maxNameLength {
			ext = ""
		}
		cut := maxNameLength - len(ext)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}
	return name
}

// CandidateName returns the n-th collision candidate for name:
// "a.pdf", "a (1).pdf", "a (2).pdf" and so on.
func CandidateName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = ext, ""
	}
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}
