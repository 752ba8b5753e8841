// Package mailstore defines the read-only view of a hierarchical mailbox
// that the extraction engine consumes.
package mailstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/altafino/docflow/internal/models"
)

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrEmptyFolder    = errors.New("folder contains no messages")
)

// Store is an opened mailbox.
type Store interface {
	// Folders lists every folder path, using "/" as separator.
	Folders(ctx context.Context) ([]string, error)
	Folder(ctx context.Context, path string) (Folder, error)
	Close() error
}

// Folder is a single folder of a Store.
type Folder interface {
	Path() string
	// Bounds returns the earliest and latest received dates, or
	// ErrEmptyFolder.
	Bounds(ctx context.Context) (earliest, latest time.Time, err error)
	// Messages returns the messages received within r in ascending received
	// order. Each call starts a fresh sequence.
	Messages(ctx context.Context, r models.DateRange) (MessageIterator, error)
}

// MessageIterator walks a lazily loaded message sequence.
type MessageIterator interface {
	Next(ctx context.Context) bool
	Message() Message
	// Total is the number of messages the sequence will yield, or -1 when
	// unknown.
	Total() int
	Err() error
	Close() error
}

// Message exposes the fields the extractor filters on. Body and Attachments
// may hit the store.
type Message interface {
	ID() string
	Subject() string
	ReceivedAt() time.Time
	Body() (string, error)
	Attachments() ([]Attachment, error)
}

// Attachment can save its content to any writer.
type Attachment interface {
	Filename() string
	ContentType() string
	Size() int64
	io.WriterTo
}

// Part is an attachment held in memory.
type Part struct {
	Name string
	Type string
	Data []byte
}

func (p *Part) Filename() string    { return p.Name }
func (p *Part) ContentType() string { return p.Type }
func (p *Part) Size() int64         { return int64(len(p.Data)) }

func (p *Part) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(p.Data).WriteTo(w)
}

// SliceIterator iterates over an in-memory message list.
type SliceIterator struct {
	msgs []Message
	pos  int
	err  error
}

func NewSliceIterator(msgs []Message) *SliceIterator {
	return &SliceIterator{msgs: msgs, pos: -1}
}

func (it *SliceIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.pos+1 >= len(it.msgs) {
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Message() Message {
	if it.pos < 0 || it.pos >= len(it.msgs) {
		return nil
	}
	return it.msgs[it.pos]
}

func (it *SliceIterator) Total() int   { return len(it.msgs) }
func (it *SliceIterator) Err() error   { return it.err }
func (it *SliceIterator) Close() error { return nil }
