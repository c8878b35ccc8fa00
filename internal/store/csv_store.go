// Package store persists company records to a CSV file, rejecting invalid
// records and exact duplicates.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/user/listing-scraper/internal/entity"
	"github.com/user/listing-scraper/internal/repository"
)

// ErrMalformedStore is returned by Open when the existing file cannot be used.
var ErrMalformedStore = errors.New("malformed record store")

const utf8BOM = "\ufeff"

// CSVStore is the record table of one (term, locality) search. The file on
// disk is rewritten in full after every successful write.
type CSVStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	records []entity.CompanyRecord
	index   map[entity.Identity]struct{}
}

// Open loads the table at path, creating the file with only a header row if
// it does not exist yet.
func Open(path string, logger *zap.Logger) (*CSVStore, error) {
	s := &CSVStore{
		path:   path,
		logger: logger.With(zap.String("file", path)),
		index:  make(map[entity.Identity]struct{}),
	}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
		if err := s.flush(); err != nil {
			return nil, err
		}
		s.logger.Info("created record store")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	defer f.Close()

	if err := s.load(f); err != nil {
		return nil, err
	}
	s.logger.Info("loaded record store", zap.Int("records", len(s.records)), zap.Int("unique", len(s.index)))
	return s, nil
}

func (s *CSVStore) load(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(entity.Columns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// An empty file is treated like a missing one.
		return s.flush()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedStore, s.path, err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	if !slices.Equal(header, entity.Columns) {
		return fmt.Errorf("%w: %s: unexpected header %v", ErrMalformedStore, s.path, header)
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedStore, s.path, err)
		}
		rec, err := entity.RecordFromRow(row)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedStore, s.path, err)
		}
		s.records = append(s.records, rec)
		s.index[rec.Identity()] = struct{}{}
	}
}

// IsValid reports whether all essential fields (Name, Phones, Address) are present.
func (s *CSVStore) IsValid(rec entity.CompanyRecord) bool {
	return present(rec.Name) && present(rec.Phones) && present(rec.Address)
}

// IsDuplicate reports whether a record with the same identity is already stored.
// Phones are compared in their normalized form.
func (s *CSVStore) IsDuplicate(rec entity.CompanyRecord) bool {
	rec.Phones = NormalizePhones(rec.Phones)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[rec.Identity()]
	return ok
}

// Write stores rec if it is valid and not a duplicate, then rewrites the file.
// A failed rewrite leaves the in-memory table as it was before the call.
func (s *CSVStore) Write(rec entity.CompanyRecord) (repository.WriteResult, error) {
	if !s.IsValid(rec) {
		return repository.Invalid, nil
	}
	rec.Phones = NormalizePhones(rec.Phones)
	rec.Emails = NormalizeEmails(rec.Emails)
	id := rec.Identity()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return repository.Duplicate, nil
	}

	s.index[id] = struct{}{}
	s.records = append(s.records, rec)
	if err := s.flush(); err != nil {
		delete(s.index, id)
		s.records = s.records[:len(s.records)-1]
		return repository.Invalid, err
	}
	return repository.Written, nil
}

// flush atomically replaces the file with the current table. Callers hold mu
// or own s exclusively.
func (s *CSVStore) flush() error {
	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	_ = w.Write(entity.Columns)
	for _, rec := range s.records {
		_ = w.Write(rec.Values())
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Len returns the number of unique identities stored.
func (s *CSVStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Records returns a copy of the stored rows in file order.
func (s *CSVStore) Records() []entity.CompanyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

func (s *CSVStore) Path() string {
	return s.path
}

// NormalizePhones removes all whitespace, so "912 345 678, 900111222"
// becomes "912345678,900111222".
func NormalizePhones(phones string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phones)
}

// NormalizeEmails lower-cases and trims an email list.
func NormalizeEmails(emails string) string {
	return strings.ToLower(strings.TrimSpace(emails))
}

func present(v string) bool {
	return strings.TrimSpace(v) != ""
}
