package fileops

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\factura (2).pdf`, "factura (2).pdf"},
		{"a:b*c?.txt", "a_b_c_.txt"},
		{"  spaced.doc  ", "spaced.doc"},
		{"", "attachment"},
		{"...", "attachment"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}

	long := strings.Repeat("x", 300) + ".pdf"
	got := SanitizeFilename(long)
	assert.Len(t, got, maxNameLength)
	assert.True(t, strings.HasSuffix(got, ".pdf"))

	// Two-byte runes: the cut backs off to a rune boundary.
	wide := SanitizeFilename(strings.Repeat("ñ", 200) + ".pdf")
	assert.True(t, utf8.ValidString(wide))
	assert.Len(t, wide, maxNameLength-1)
	assert.Equal(t, strings.Repeat("ñ", 125)+".pdf", wide)
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "a.pdf", CandidateName("a.pdf", 0))
	assert.Equal(t, "a (1).pdf", CandidateName("a.pdf", 1))
	assert.Equal(t, "a (12).tar", CandidateName("a.tar", 12))
	assert.Equal(t, "README (2)", CandidateName("README", 2))
	assert.Equal(t, ".env (1)", CandidateName(".env", 1))
}
