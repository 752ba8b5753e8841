package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/DusanKasan/parsemail"
	"github.com/altafino/docflow/internal/mailstore"
	"github.com/jhillyerd/enmime"
)

// Parsed is a fully decoded message.
type Parsed struct {
	MessageID   string
	Subject     string
	Date        time.Time
	HasDate     bool
	Text        string
	Attachments []mailstore.Attachment
}

// Parse decodes a raw RFC 5322 message. enmime handles the common case;
// parsemail is tried when enmime rejects the message outright.
func Parse(raw []byte, logger *slog.Logger) (*Parsed, error) {
	if logger == nil {
		logger = slog.Default()
	}

	headers, err := ParseHeaders(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	p := &Parsed{
		MessageID: MessageID(headers, raw),
		Subject:   DecodeHeader(HeaderValue(headers, "Subject")),
	}
	p.Date, p.HasDate = HeaderDate(headers)

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		logger.Debug("enmime failed, falling back to parsemail", "message_id", p.MessageID, "error", err)
		return parseFallback(raw, p)
	}

	if s := env.GetHeader("Subject"); s != "" {
		p.Subject = s
	}
	p.Text = env.Text
	if p.Text == "" {
		p.Text = env.HTML
	}

	n := 0
	add := func(name, contentType string, data []byte) {
		n++
		p.Attachments = append(p.Attachments, &mailstore.Part{
			Name: AttachmentName(name, contentType, n),
			Type: contentType,
			Data: data,
		})
	}
	for _, part := range env.Attachments {
		add(part.FileName, part.ContentType, part.Content)
	}
	for _, part := range env.Inlines {
		if part.FileName != "" {
			add(part.FileName, part.ContentType, part.Content)
		}
	}
	return p, nil
}

func parseFallback(raw []byte, p *Parsed) (*Parsed, error) {
	email, err := parsemail.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	if email.Subject != "" {
		p.Subject = email.Subject
	}
	if !p.HasDate && !email.Date.IsZero() {
		p.Date, p.HasDate = email.Date, true
	}
	p.Text = email.TextBody
	if p.Text == "" {
		p.Text = email.HTMLBody
	}

	for i, att := range email.Attachments {
		data, err := io.ReadAll(att.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %q: %w", att.Filename, err)
		}
		p.Attachments = append(p.Attachments, &mailstore.Part{
			Name: AttachmentName(att.Filename, att.ContentType, i+1),
			Type: att.ContentType,
			Data: data,
		})
	}
	return p, nil
}

// AttachmentName decodes an encoded filename and invents one from the
// content type when the part carries none.
func AttachmentName(name, contentType string, n int) string {
	name = strings.TrimSpace(DecodeHeader(name))
	if name != "" {
		return name
	}
	return fmt.Sprintf("attachment_%d%s", n, ExtensionFor(contentType))
}

var mimeToExt = map[string]string{
	"application/pdf":          ".pdf",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/xml":             ".xml",
	"application/zip":             ".zip",
	"application/x-7z-compressed": ".7z",
	"image/jpeg":                  ".jpg",
	"image/png":                   ".png",
	"image/gif":                   ".gif",
	"image/tiff":                  ".tiff",
	"text/plain":                  ".txt",
	"text/html":                   ".html",
	"text/csv":                    ".csv",
	"text/xml":                    ".xml",
}

// ExtensionFor maps a content type to a file extension, ".bin" when unknown.
func ExtensionFor(contentType string) string {
	mainType := contentType
	if idx := strings.Index(mainType, ";"); idx != -1 {
		mainType = mainType[:idx]
	}
	mainType = strings.ToLower(strings.TrimSpace(mainType))

	if ext, ok := mimeToExt[mainType]; ok {
		return ext
	}
	if strings.HasPrefix(mainType, "text/") {
		return ".txt"
	}
	return ".bin"
}
