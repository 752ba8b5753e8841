package parser

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// MessageID returns the Message-ID header without brackets, or an MD5 of raw
// when the header is missing.
func MessageID(headers map[string][]string, raw []byte) string {
	if id := strings.Trim(strings.TrimSpace(HeaderValue(headers, "Message-Id")), "<>"); id != "" {
		return id
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}
