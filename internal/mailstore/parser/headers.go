package parser

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"net/textproto"
	"strings"
	"time"
)

// ParseHeaders reads the header block of a message. Reading stops at the
// first empty line, so the body is never consumed.
func ParseHeaders(r io.Reader) (map[string][]string, error) {
	headers := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var key, value string
	flush := func() {
		if key != "" {
			headers[key] = append(headers[key], value)
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}

		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if key != "" {
				value += " " + strings.TrimSpace(line)
			}
			continue
		}

		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		flush()
		key = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
		value = strings.TrimSpace(line[idx+1:])
	}
	flush()

	if err := scanner.Err(); err != nil {
		return headers, fmt.Errorf("error scanning headers: %w", err)
	}
	return headers, nil
}

// HeaderValue returns the first value of the first header present.
func HeaderValue(headers map[string][]string, names ...string) string {
	for _, name := range names {
		if values, ok := headers[textproto.CanonicalMIMEHeaderKey(name)]; ok && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// DecodeHeader decodes RFC 2047 encoded words, returning s unchanged when it
// cannot be decoded.
func DecodeHeader(s string) string {
	dec := mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

var dateHeaders = []string{
	"Date",
	"Sent",
	"Delivery-Date",
	"Resent-Date",
	"X-Original-Date",
	"Received",
}

var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 -0700",
	"Mon Jan 2 15:04:05 2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a header date in any of the formats seen in the wild.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, candidate := range []string{s, stripComment(s)} {
		for _, format := range dateFormats {
			if t, err := time.Parse(format, candidate); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// HeaderDate extracts the message date from the usual headers. Received
// headers carry the date after the last semicolon.
func HeaderDate(headers map[string][]string) (time.Time, bool) {
	for _, name := range dateHeaders {
		value := HeaderValue(headers, name)
		if value == "" {
			continue
		}
		if name == "Received" {
			if idx := strings.LastIndex(value, ";"); idx != -1 {
				value = value[idx+1:]
			}
		}
		if t, ok := ParseDate(value); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// stripComment drops a trailing "(zone name)" comment.
func stripComment(s string) string {
	if idx := strings.Index(s, "("); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
