package emlstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/models"
	"github.com/altafino/docflow/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 9, 30, 0, 0, time.UTC)
}

func newFixtureStore(t *testing.T) *Store {
	t.Helper()
	fs := afero.NewMemMapFs()

	write := func(name string, m testutil.Message) {
		require.NoError(t, afero.WriteFile(fs, name, testutil.RawMessage(m), 0o644))
	}
	// File names deliberately disagree with date order.
	write("/mail/Inbox/a.eml", testutil.Message{ID: "m3", Subject: "third", Date: day(7), Body: "c"})
	write("/mail/Inbox/b.eml", testutil.Message{ID: "m1", Subject: "first", Date: day(1), Body: "a",
		Attachments: []testutil.Attachment{{Name: "a.pdf", Type: "application/pdf", Data: []byte("alpha")}}})
	write("/mail/Inbox/c.eml", testutil.Message{ID: "m2", Subject: "second", Date: day(4), Body: "b"})
	require.NoError(t, afero.WriteFile(fs, "/mail/Inbox/notes.txt", []byte("ignored"), 0o644))
	write("/mail/Inbox/Facturas/d.eml", testutil.Message{ID: "m4", Subject: "nested", Date: day(2)})
	require.NoError(t, fs.MkdirAll("/mail/Empty", 0o755))

	s, err := New(fs, "/mail", nil)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, it mailstore.MessageIterator) []string {
	t.Helper()
	var ids []string
	for it.Next(context.Background()) {
		ids = append(ids, it.Message().ID())
	}
	require.NoError(t, it.Err())
	return ids
}

func TestFolders(t *testing.T) {
	s := newFixtureStore(t)
	folders, err := s.Folders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{".", "Empty", "Inbox", "Inbox/Facturas"}, folders)
}

func TestFolderMessagesOrderedByDate(t *testing.T) {
	s := newFixtureStore(t)
	ctx := context.Background()

	f, err := s.Folder(ctx, "Inbox")
	require.NoError(t, err)

	earliest, latest, err := f.Bounds(ctx)
	require.NoError(t, err)
	assert.True(t, earliest.Equal(day(1)))
	assert.True(t, latest.Equal(day(7)))

	it, err := f.Messages(ctx, models.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 3, it.Total())
	assert.Equal(t, []string{"m1", "m2", "m3"}, collect(t, it))

	// A second call restarts the sequence.
	it, err = f.Messages(ctx, models.DateRange{})
	require.NoError(t, err)
	assert.Len(t, collect(t, it), 3)
}

func TestFolderMessagesRange(t *testing.T) {
	s := newFixtureStore(t)
	ctx := context.Background()
	f, err := s.Folder(ctx, `Inbox`)
	require.NoError(t, err)

	start, end := day(2), day(4)
	it, err := f.Messages(ctx, models.DateRange{Start: &start, End: &end}.WholeDays())
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, collect(t, it))
}

func TestMessageContent(t *testing.T) {
	s := newFixtureStore(t)
	ctx := context.Background()
	f, err := s.Folder(ctx, "Inbox")
	require.NoError(t, err)

	it, err := f.Messages(ctx, models.DateRange{})
	require.NoError(t, err)
	require.True(t, it.Next(ctx))
	msg := it.Message()

	assert.Equal(t, "first", msg.Subject())
	body, err := msg.Body()
	require.NoError(t, err)
	assert.Contains(t, body, "a")

	atts, err := msg.Attachments()
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "a.pdf", atts[0].Filename())
	assert.Equal(t, int64(5), atts[0].Size())

	var buf bytes.Buffer
	_, err = atts[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "alpha", buf.String())
}

func TestFolderLookup(t *testing.T) {
	s := newFixtureStore(t)
	ctx := context.Background()

	f, err := s.Folder(ctx, `Inbox\Facturas`)
	require.NoError(t, err)
	assert.Equal(t, "Inbox/Facturas", f.Path())

	_, err = s.Folder(ctx, "Missing")
	assert.ErrorIs(t, err, mailstore.ErrFolderNotFound)

	empty, err := s.Folder(ctx, "Empty")
	require.NoError(t, err)
	_, _, err = empty.Bounds(ctx)
	assert.ErrorIs(t, err, mailstore.ErrEmptyFolder)
}

func TestCancelledIteration(t *testing.T) {
	s := newFixtureStore(t)
	f, err := s.Folder(context.Background(), "Inbox")
	require.NoError(t, err)
	it, err := f.Messages(context.Background(), models.DateRange{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), context.Canceled)
}
