package imapstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/mailstore/parser"
	"github.com/altafino/docflow/internal/models"
	"github.com/emersion/go-imap"
)

// Header is the envelope data fetched up front for every message.
type Header struct {
	UID       uint32
	MessageID string
	Subject   string
	Received  time.Time
}

// SortHeaders orders headers by received date, then UID.
func SortHeaders(h []Header) {
	sort.SliceStable(h, func(i, j int) bool {
		if h[i].Received.Equal(h[j].Received) {
			return h[i].UID < h[j].UID
		}
		return h[i].Received.Before(h[j].Received)
	})
}

// SearchCriteria translates a date range into IMAP SINCE/BEFORE. Both work
// on whole days, BEFORE being exclusive.
func SearchCriteria(r models.DateRange) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if r.Start != nil {
		s := r.Start
		criteria.Since = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
	}
	if r.End != nil {
		e := r.End
		criteria.Before = time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, e.Location()).AddDate(0, 0, 1)
	}
	return criteria
}

// ToSlashPath converts a server mailbox name to a "/" separated path.
func ToSlashPath(name, delimiter string) string {
	if delimiter == "" || delimiter == "/" {
		return name
	}
	return strings.ReplaceAll(name, delimiter, "/")
}

// FromSlashPath converts a "/" separated path to a server mailbox name.
// Backslashes are accepted as separators too.
func FromSlashPath(path, delimiter string) string {
	path = strings.Trim(strings.ReplaceAll(path, "\\", "/"), "/")
	if delimiter == "" || delimiter == "/" {
		return path
	}
	return strings.ReplaceAll(path, "/", delimiter)
}

type message struct {
	folder *folder
	header Header

	mu     sync.Mutex
	parsed *parser.Parsed
}

func (m *message) ID() string {
	if id := strings.Trim(m.header.MessageID, "<>"); id != "" {
		return id
	}
	return fmt.Sprintf("%s:%d", m.folder.name, m.header.UID)
}

func (m *message) Subject() string       { return parser.DecodeHeader(m.header.Subject) }
func (m *message) ReceivedAt() time.Time { return m.header.Received }

func (m *message) Body() (string, error) {
	p, err := m.load()
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

func (m *message) Attachments() ([]mailstore.Attachment, error) {
	p, err := m.load()
	if err != nil {
		return nil, err
	}
	return p.Attachments, nil
}

// load fetches and parses the full message on first use. BODY.PEEK keeps
// the \Seen flag untouched.
func (m *message) load() (*parser.Parsed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parsed != nil {
		return m.parsed, nil
	}

	s := m.folder.store
	s.mu.Lock()
	raw, err := m.fetch()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p, err := parser.Parse(raw, s.logger)
	if err != nil {
		return nil, err
	}
	m.parsed = p
	return p, nil
}

func (m *message) fetch() ([]byte, error) {
	s := m.folder.store
	c, err := s.conn(context.Background())
	if err != nil {
		return nil, err
	}
	if s.selected != m.folder.name {
		if c, _, err = s.ensureSelected(context.Background(), m.folder.name); err != nil {
			return nil, err
		}
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(m.header.UID)
	section := &imap.BodySectionName{Peek: true}

	msgs, err := fetchAll(func(ch chan *imap.Message) error {
		return c.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, ch)
	})
	if err != nil {
		return nil, s.drop(fmt.Sprintf("fetch message %d", m.header.UID), err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %d: %w", m.header.UID, errEmptyBody)
	}

	body := msgs[0].GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("message %d: %w", m.header.UID, errEmptyBody)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, s.drop(fmt.Sprintf("read message %d", m.header.UID), err)
	}
	return raw, nil
}
