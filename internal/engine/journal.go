package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// JournalPrefix starts the file name of every run log.
const JournalPrefix = "log_"

// Journal is the optional plain-text log a run leaves in its destination.
type Journal struct {
	mu   sync.Mutex
	file afero.File
	path string
}

// OpenJournal creates log_<kind>_<date>_<time>.log in dir and writes the
// header lines.
func OpenJournal(fs afero.Fs, dir, kind string, now time.Time, header ...string) (*Journal, error) {
	name := fmt.Sprintf("%s%s_%s.log", JournalPrefix, kind, now.Format("2006-01-02_15.04.05"))
	path := filepath.Join(dir, name)

	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}

	j := &Journal{file: f, path: path}
	rule := strings.Repeat("=", 60)
	j.line(rule)
	j.line(fmt.Sprintf("%s run started %s", kind, now.Format("2006-01-02 15:04:05")))
	for _, h := range header {
		j.line(h)
	}
	j.line(rule)
	return j, nil
}

// IsJournal reports whether name looks like a run log file.
func IsJournal(name string) bool {
	return strings.HasPrefix(name, JournalPrefix) && strings.HasSuffix(name, ".log")
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Write(e LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintf(j.file, "%s [%s] %s\n", e.Time.Format("15:04:05"), e.Severity, e.Message)
}

func (j *Journal) line(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.file, s)
}

// Close appends the final summary and closes the file.
func (j *Journal) Close(state State, counts Counts, elapsed time.Duration) error {
	rule := strings.Repeat("=", 60)
	j.line(rule)
	j.line("SUMMARY")
	j.line(fmt.Sprintf("state:     %s", state))
	j.line(fmt.Sprintf("processed: %d", counts.Processed))
	j.line(fmt.Sprintf("skipped:   %d", counts.Skipped))
	j.line(fmt.Sprintf("errored:   %d", counts.Errored))
	j.line(fmt.Sprintf("elapsed:   %s", elapsed.Round(time.Millisecond)))
	j.line(rule)

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
