// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"
)

// Attachment describes a MIME attachment of a fixture message.
type Attachment struct {
	Name string
	Type string
	Data []byte
}

// Message describes a fixture message.
type Message struct {
	ID          string
	Subject     string
	Date        time.Time
	Body        string
	Attachments []Attachment
}

// RawMessage renders m as an RFC 5322 message with CRLF line endings.
func RawMessage(m Message) []byte {
	var b bytes.Buffer
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	line("From: sender@example.com")
	line("To: receiver@example.com")
	line("Subject: %s", m.Subject)
	if !m.Date.IsZero() {
		line("Date: %s", m.Date.Format(time.RFC1123Z))
	}
	if m.ID != "" {
		line("Message-ID: <%s>", m.ID)
	}
	line("MIME-Version: 1.0")

	if len(m.Attachments) == 0 {
		line("Content-Type: text/plain; charset=utf-8")
		line("")
		line("%s", m.Body)
		return b.Bytes()
	}

	const boundary = "docflow-fixture-boundary"
	line("Content-Type: multipart/mixed; boundary=%q", boundary)
	line("")
	line("--%s", boundary)
	line("Content-Type: text/plain; charset=utf-8")
	line("")
	line("%s", m.Body)
	for _, a := range m.Attachments {
		contentType := a.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		line("--%s", boundary)
		line("Content-Type: %s; name=%q", contentType, a.Name)
		line("Content-Disposition: attachment; filename=%q", a.Name)
		line("Content-Transfer-Encoding: base64")
		line("")
		encoded := base64.StdEncoding.EncodeToString(a.Data)
		for len(encoded) > 76 {
			line("%s", encoded[:76])
			encoded = encoded[76:]
		}
		line("%s", encoded)
	}
	line("--%s--", boundary)
	return b.Bytes()
}
