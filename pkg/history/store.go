// Package history persists per-test result records across restarts. Each
// test owns one JSON-lines file named after its URL-escaped qualified name;
// appends are O(1) file appends and never rewrite earlier records.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gooseworks/goose/pkg/models"
)

const fileExtension = ".jsonl"

// ErrIndexOutOfRange is returned by DeleteAt when the record index does not
// exist for the test.
var ErrIndexOutOfRange = errors.New("history: record index out of range")

// Store is the file-backed result history. All methods are safe for
// concurrent use; records for one test are serialized by a per-test lock so
// workers appending results never interleave partial lines.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	tests map[string]*testHistory
}

type testHistory struct {
	mu      sync.RWMutex
	path    string
	records []models.TestResult
}

// NewStore opens (creating if needed) the history directory and loads every
// record file into memory. A torn trailing line — the residue of a crash
// mid-append — is dropped; all complete records before it survive.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory %s: %w", dir, err)
	}

	s := &Store{
		dir:    dir,
		logger: logger.With("component", "history"),
		tests:  make(map[string]*testHistory),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading history directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExtension) {
			continue
		}
		escaped := strings.TrimSuffix(entry.Name(), fileExtension)
		qualifiedName, err := url.PathUnescape(escaped)
		if err != nil {
			s.logger.Warn("Skipping history file with unparseable name", "file", entry.Name(), "error", err)
			continue
		}
		path := filepath.Join(dir, entry.Name())
		records, err := loadRecords(path, s.logger)
		if err != nil {
			return nil, fmt.Errorf("loading history for %s: %w", qualifiedName, err)
		}
		s.tests[qualifiedName] = &testHistory{path: path, records: records}
	}

	s.logger.Info("History store loaded", "tests", len(s.tests))
	return s, nil
}

func loadRecords(path string, logger *slog.Logger) ([]models.TestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []models.TestResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record models.TestResult
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			// A torn final line means the process died mid-append.
			logger.Warn("Dropping unparseable history record", "file", path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) pathFor(qualifiedName string) string {
	return filepath.Join(s.dir, url.PathEscape(qualifiedName)+fileExtension)
}

// historyFor returns the per-test state, creating it when create is set.
func (s *Store) historyFor(qualifiedName string, create bool) *testHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.tests[qualifiedName]
	if !ok && create {
		h = &testHistory{path: s.pathFor(qualifiedName)}
		s.tests[qualifiedName] = h
	}
	return h
}

// Append persists one result as a new trailing record. The write is a single
// O_APPEND line followed by an fsync, so earlier records are never touched.
func (s *Store) Append(result models.TestResult) error {
	h := s.historyFor(result.QualifiedName, true)

	h.mu.Lock()
	defer h.mu.Unlock()

	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending history record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing history file: %w", err)
	}

	h.records = append(h.records, result)
	return nil
}

// List returns every record for a test in append (chronological) order. A
// test with no history yields an empty slice, not an error.
func (s *Store) List(qualifiedName string) []models.TestResult {
	h := s.historyFor(qualifiedName, false)
	if h == nil {
		return []models.TestResult{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.TestResult, len(h.records))
	copy(out, h.records)
	return out
}

// Latest returns the most recent record for a test.
func (s *Store) Latest(qualifiedName string) (models.TestResult, bool) {
	h := s.historyFor(qualifiedName, false)
	if h == nil {
		return models.TestResult{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return models.TestResult{}, false
	}
	return h.records[len(h.records)-1], true
}

// LatestAll returns the most recent record per test, keyed by qualified name.
func (s *Store) LatestAll() map[string]models.TestResult {
	s.mu.Lock()
	histories := make(map[string]*testHistory, len(s.tests))
	for name, h := range s.tests {
		histories[name] = h
	}
	s.mu.Unlock()

	out := make(map[string]models.TestResult, len(histories))
	for name, h := range histories {
		h.mu.RLock()
		if len(h.records) > 0 {
			out[name] = h.records[len(h.records)-1]
		}
		h.mu.RUnlock()
	}
	return out
}

// Names returns the qualified names that have at least one record, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tests))
	for name, h := range s.tests {
		h.mu.RLock()
		n := len(h.records)
		h.mu.RUnlock()
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DeleteAt removes the record at the given chronological index and rewrites
// the test's file atomically (temp file plus rename).
func (s *Store) DeleteAt(qualifiedName string, index int) error {
	h := s.historyFor(qualifiedName, false)
	if h == nil {
		return ErrIndexOutOfRange
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if index < 0 || index >= len(h.records) {
		return ErrIndexOutOfRange
	}

	remaining := make([]models.TestResult, 0, len(h.records)-1)
	remaining = append(remaining, h.records[:index]...)
	remaining = append(remaining, h.records[index+1:]...)

	if err := rewriteRecords(h.path, remaining); err != nil {
		return err
	}
	h.records = remaining
	return nil
}

// Truncate removes all records for one test and deletes its file.
func (s *Store) Truncate(qualifiedName string) error {
	s.mu.Lock()
	h, ok := s.tests[qualifiedName]
	if ok {
		delete(s.tests, qualifiedName)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing history file: %w", err)
	}
	return nil
}

// TruncateAll removes every record for every test.
func (s *Store) TruncateAll() error {
	s.mu.Lock()
	histories := s.tests
	s.tests = make(map[string]*testHistory)
	s.mu.Unlock()

	for name, h := range histories {
		h.mu.Lock()
		h.records = nil
		err := os.Remove(h.path)
		h.mu.Unlock()
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing history for %s: %w", name, err)
		}
	}
	return nil
}

func rewriteRecords(path string, records []models.TestResult) error {
	if len(records) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing empty history file: %w", err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("encoding history record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("writing history record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}
