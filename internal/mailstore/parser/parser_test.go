package parser

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/altafino/docflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	raw := "Subject: first part\r\n\tcontinued\r\nX-Custom: one\r\nX-Custom: two\r\n\r\nbody: not a header\r\n"

	headers, err := ParseHeaders(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"first part continued"}, headers["Subject"])
	assert.Equal(t, []string{"one", "two"}, headers["X-Custom"])
	assert.NotContains(t, headers, "Body")
	assert.Equal(t, "one", HeaderValue(headers, "x-custom"))
}

func TestHeaderDate(t *testing.T) {
	t.Run("date header", func(t *testing.T) {
		headers := map[string][]string{"Date": {"Tue, 05 Mar 2024 10:15:00 +0100 (CET)"}}
		got, ok := HeaderDate(headers)
		require.True(t, ok)
		assert.True(t, got.Equal(time.Date(2024, 3, 5, 9, 15, 0, 0, time.UTC)))
	})

	t.Run("received fallback", func(t *testing.T) {
		headers := map[string][]string{"Received": {"from mx by host; Tue, 05 Mar 2024 10:15:00 +0000"}}
		got, ok := HeaderDate(headers)
		require.True(t, ok)
		assert.Equal(t, 2024, got.Year())
	})

	t.Run("unparseable", func(t *testing.T) {
		_, ok := HeaderDate(map[string][]string{"Date": {"yesterday"}})
		assert.False(t, ok)
	})

	t.Run("day first", func(t *testing.T) {
		got, ok := ParseDate("05/03/2024")
		require.True(t, ok)
		assert.Equal(t, time.March, got.Month())
	})
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", MessageID(map[string][]string{"Message-Id": {"<abc@example.com>"}}, nil))

	id := MessageID(map[string][]string{}, []byte("raw"))
	assert.Len(t, id, 32)
	assert.Equal(t, id, MessageID(map[string][]string{}, []byte("raw")))
}

func TestParseMultipart(t *testing.T) {
	raw := testutil.RawMessage(testutil.Message{
		ID:      "m1@example.com",
		Subject: "=?UTF-8?Q?Factura_n=C2=BA_1?=",
		Date:    time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC),
		Body:    "Adjunto la factura.",
		Attachments: []testutil.Attachment{
			{Name: "a.pdf", Type: "application/pdf", Data: []byte("%PDF-1.4 alpha")},
			{Name: "b.xml", Type: "text/xml", Data: []byte("<b/>")},
		},
	})

	p, err := Parse(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "m1@example.com", p.MessageID)
	assert.Equal(t, "Factura nº 1", p.Subject)
	assert.True(t, p.HasDate)
	assert.Contains(t, p.Text, "Adjunto la factura.")
	require.Len(t, p.Attachments, 2)

	assert.Equal(t, "a.pdf", p.Attachments[0].Filename())
	var buf bytes.Buffer
	_, err = p.Attachments[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 alpha", buf.String())

	assert.Equal(t, "b.xml", p.Attachments[1].Filename())
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "informe.pdf", AttachmentName("=?UTF-8?Q?informe.pdf?=", "application/pdf", 1))
	assert.Equal(t, "attachment_2.pdf", AttachmentName("", "application/pdf", 2))
	assert.Equal(t, "attachment_3.bin", AttachmentName("  ", "", 3))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionFor("application/pdf; name=x"))
	assert.Equal(t, ".txt", ExtensionFor("text/x-unknown"))
	assert.Equal(t, ".bin", ExtensionFor("application/x-whatever"))
}
