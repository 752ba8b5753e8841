// Package imapstore exposes an IMAP account as a read-only mail store.
package imapstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/models"
	"github.com/altafino/docflow/internal/oauth2"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// TokenSource supplies OAuth2 access tokens for XOAUTH2 logins.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// Config describes how to reach and authenticate against the server.
type Config struct {
	Server     string
	Port       int
	TLS        bool
	VerifyCert bool
	Username   string
	Password   string
	Timeout    time.Duration
	// Tokens switches authentication to XOAUTH2 when set.
	Tokens TokenSource
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// Store holds one IMAP connection. Folder selection is per connection, so
// only the most recently opened folder can be read at a time.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	c         *client.Client
	delimiter string
	selected  string
}

// Dial connects and logs in.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{cfg: cfg, logger: logger, delimiter: "/"}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info("connecting to IMAP server",
		"server", s.cfg.Server,
		"port", s.cfg.Port,
		"tls_enabled", s.cfg.TLS,
		"username", s.cfg.Username,
	)

	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Server,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !s.cfg.VerifyCert,
	}

	var c *client.Client
	var err error
	switch {
	case s.cfg.Port == 143:
		c, err = client.Dial(s.cfg.addr())
		if err == nil && s.cfg.TLS {
			if serr := c.StartTLS(tlsConfig); serr != nil {
				s.logger.Warn("STARTTLS failed, continuing with plain connection", "error", serr)
			}
		}
	case s.cfg.TLS:
		c, err = client.DialTLS(s.cfg.addr(), tlsConfig)
	default:
		c, err = client.Dial(s.cfg.addr())
	}
	if err != nil {
		return engine.Structural("connect to IMAP server", err)
	}

	if s.cfg.Timeout > 0 {
		c.Timeout = s.cfg.Timeout
	}

	if s.cfg.Tokens != nil {
		token, err := s.cfg.Tokens.GetAccessToken(ctx)
		if err != nil {
			c.Logout()
			return engine.Structural("obtain OAuth2 token", err)
		}
		if err := c.Authenticate(oauth2.NewXOAUTH2Client(s.cfg.Username, token)); err != nil {
			c.Logout()
			return engine.Structural("IMAP XOAUTH2 authentication", err)
		}
	} else if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		return engine.Structural("IMAP login", err)
	}

	s.c = c
	s.logger.Info("successfully connected to IMAP server and logged in")
	return nil
}

// conn returns a live client, reconnecting and reselecting the current
// folder after a dropped connection.
func (s *Store) conn(ctx context.Context) (*client.Client, error) {
	if s.c != nil {
		return s.c, nil
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if s.selected != "" {
		if _, err := s.c.Select(s.selected, true); err != nil {
			return nil, fmt.Errorf("failed to reselect %s: %w", s.selected, err)
		}
	}
	return s.c, nil
}

// drop forgets a connection after a transport failure and reports the
// failure as recoverable so the caller may retry on a new connection.
func (s *Store) drop(op string, err error) error {
	if s.c != nil {
		s.c.Logout()
		s.c = nil
	}
	return &engine.RecoverableIOError{Op: op, Err: err}
}

func (s *Store) Folders(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		if m.Delimiter != "" {
			s.delimiter = m.Delimiter
		}
		folders = append(folders, ToSlashPath(m.Name, m.Delimiter))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	sort.Strings(folders)
	return folders, nil
}

func (s *Store) Folder(ctx context.Context, path string) (mailstore.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	name := FromSlashPath(path, s.delimiter)
	status, err := c.Select(name, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", mailstore.ErrFolderNotFound, path, err)
	}
	s.selected = name
	s.logger.Debug("selected mailbox", "mailbox", name, "messages", status.Messages)
	return &folder{store: s, path: path, name: name}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	err := s.c.Logout()
	s.c = nil
	return err
}

// ensureSelected reselects name when another folder was opened since.
func (s *Store) ensureSelected(ctx context.Context, name string) (*client.Client, *imap.MailboxStatus, error) {
	c, err := s.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	status, err := c.Select(name, true)
	if err != nil {
		return nil, nil, s.drop("select "+name, err)
	}
	s.selected = name
	return c, status, nil
}

type folder struct {
	store *Store
	path  string
	name  string
}

func (f *folder) Path() string { return f.path }

func (f *folder) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	c, status, err := f.store.ensureSelected(ctx, f.name)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if status.Messages == 0 {
		return time.Time{}, time.Time{}, mailstore.ErrEmptyFolder
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(1, status.Messages)
	msgs, err := fetchAll(func(ch chan *imap.Message) error {
		return c.Fetch(seqset, []imap.FetchItem{imap.FetchInternalDate}, ch)
	})
	if err != nil {
		return time.Time{}, time.Time{}, f.store.drop("fetch folder bounds", err)
	}

	var earliest, latest time.Time
	for _, m := range msgs {
		if earliest.IsZero() || m.InternalDate.Before(earliest) {
			earliest = m.InternalDate
		}
		if m.InternalDate.After(latest) {
			latest = m.InternalDate
		}
	}
	return earliest, latest, nil
}

func (f *folder) Messages(ctx context.Context, r models.DateRange) (mailstore.MessageIterator, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	c, _, err := f.store.ensureSelected(ctx, f.name)
	if err != nil {
		return nil, err
	}

	uids, err := c.UidSearch(SearchCriteria(r))
	if err != nil {
		return nil, f.store.drop("search messages", err)
	}
	if len(uids) == 0 {
		return mailstore.NewSliceIterator(nil), nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	fetched, err := fetchAll(func(ch chan *imap.Message) error {
		return c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, imap.FetchEnvelope}, ch)
	})
	if err != nil {
		return nil, f.store.drop("fetch envelopes", err)
	}

	headers := make([]Header, 0, len(fetched))
	for _, m := range fetched {
		h := Header{UID: m.Uid, Received: m.InternalDate}
		if m.Envelope != nil {
			h.Subject = m.Envelope.Subject
			h.MessageID = m.Envelope.MessageId
		}
		// SEARCH works on whole days in the server's zone; trim to the
		// exact range here.
		if r.Contains(h.Received) {
			headers = append(headers, h)
		}
	}
	SortHeaders(headers)

	msgs := make([]mailstore.Message, 0, len(headers))
	for _, h := range headers {
		msgs = append(msgs, &message{folder: f, header: h})
	}
	return mailstore.NewSliceIterator(msgs), nil
}

func fetchAll(fetch func(chan *imap.Message) error) ([]*imap.Message, error) {
	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- fetch(ch)
	}()

	var msgs []*imap.Message
	for m := range ch {
		msgs = append(msgs, m)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return msgs, nil
}

var errEmptyBody = errors.New("server returned no message body")
