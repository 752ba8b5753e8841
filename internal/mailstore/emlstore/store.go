// Package emlstore serves a directory tree of .eml files as a mail store.
// Every directory is a folder; the messages of a folder are the .eml files
// directly inside it.
package emlstore

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/mailstore"
	"github.com/altafino/docflow/internal/mailstore/parser"
	"github.com/altafino/docflow/internal/models"
	"github.com/spf13/afero"
)

const messageExt = ".eml"

// RootFolder is the folder path of the store root.
const RootFolder = "."

type Store struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
}

// New opens the store rooted at root. The root must be an existing
// directory.
func New(fs afero.Fs, root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open mail directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mail directory %s is not a directory", root)
	}
	return &Store{fs: fs, root: root, logger: logger}, nil
}

func (s *Store) Folders(ctx context.Context) ([]string, error) {
	var folders []string
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		folders = append(folders, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	sort.Strings(folders)
	return folders, nil
}

func (s *Store) Folder(ctx context.Context, folderPath string) (mailstore.Folder, error) {
	clean := path.Clean("/" + strings.ReplaceAll(folderPath, "\\", "/"))
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		rel = RootFolder
	}
	dir := filepath.Join(s.root, filepath.FromSlash(rel))

	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", mailstore.ErrFolderNotFound, folderPath)
	}
	return &folder{store: s, path: rel, dir: dir}, nil
}

// Location returns the directory backing folderPath.
func (s *Store) Location(folderPath string) string {
	rel := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(folderPath, "\\", "/")), "/")
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *Store) Close() error { return nil }

type entry struct {
	file     string
	id       string
	subject  string
	received time.Time
}

type folder struct {
	store *Store
	path  string
	dir   string

	once    sync.Once
	entries []entry
	err     error
}

func (f *folder) Path() string { return f.path }

func (f *folder) Bounds(ctx context.Context) (time.Time, time.Time, error) {
	entries, err := f.index(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(entries) == 0 {
		return time.Time{}, time.Time{}, mailstore.ErrEmptyFolder
	}
	return entries[0].received, entries[len(entries)-1].received, nil
}

func (f *folder) Messages(ctx context.Context, r models.DateRange) (mailstore.MessageIterator, error) {
	entries, err := f.index(ctx)
	if err != nil {
		return nil, err
	}
	msgs := make([]mailstore.Message, 0, len(entries))
	for _, e := range entries {
		if r.Contains(e.received) {
			msgs = append(msgs, &message{store: f.store, entry: e})
		}
	}
	return mailstore.NewSliceIterator(msgs), nil
}

// index reads the headers of every message once and orders them by
// received date.
func (f *folder) index(ctx context.Context) ([]entry, error) {
	f.once.Do(func() {
		f.entries, f.err = f.scan(ctx)
	})
	return f.entries, f.err
}

func (f *folder) scan(ctx context.Context) ([]entry, error) {
	infos, err := afero.ReadDir(f.store.fs, f.dir)
	if err != nil {
		return nil, engine.Structural("read folder "+f.path, err)
	}

	var entries []entry
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(info.Name()), messageExt) {
			continue
		}
		file := filepath.Join(f.dir, info.Name())
		e, err := f.readEntry(file, info)
		if err != nil {
			f.store.logger.Warn("skipping unreadable message", "file", file, "error", err)
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].received.Equal(entries[j].received) {
			return entries[i].file < entries[j].file
		}
		return entries[i].received.Before(entries[j].received)
	})
	return entries, nil
}

func (f *folder) readEntry(file string, info os.FileInfo) (entry, error) {
	fh, err := f.store.fs.Open(file)
	if err != nil {
		return entry{}, err
	}
	defer fh.Close()

	headers, err := parser.ParseHeaders(bufio.NewReader(fh))
	if err != nil {
		return entry{}, err
	}

	received, ok := parser.HeaderDate(headers)
	if !ok {
		received = info.ModTime()
	}
	return entry{
		file:     file,
		id:       parser.MessageID(headers, []byte(file)),
		subject:  parser.DecodeHeader(parser.HeaderValue(headers, "Subject")),
		received: received,
	}, nil
}

type message struct {
	store *Store
	entry entry

	mu     sync.Mutex
	parsed *parser.Parsed
}

func (m *message) ID() string            { return m.entry.id }
func (m *message) Subject() string       { return m.entry.subject }
func (m *message) ReceivedAt() time.Time { return m.entry.received }

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

func (m *message) load() (*parser.Parsed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.parsed != nil {
		return m.parsed, nil
	}

	raw, err := afero.ReadFile(m.store.fs, m.entry.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", m.entry.file, err)
	}
	p, err := parser.Parse(raw, m.store.logger)
	if err != nil {
		return nil, err
	}
	m.parsed = p
	return p, nil
}
