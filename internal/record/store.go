// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package record

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/recall/internal/jsonfile"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Reader is the read side of the record store that the index and the
// retrieval layer consume. The store is ground truth; readers never mutate it.
type Reader interface {
	ListAll(ctx context.Context) ([]*Record, error)
	// GetByID returns nil, nil when no record has the id.
	GetByID(ctx context.Context, id string) (*Record, error)
}

// Store is the full record store used by the CLI and HTTP surfaces.
type Store interface {
	Reader
	Add(ctx context.Context, rec *Record) (string, error)
	// Update replaces the stored record with the same ID. It reports false
	// when the id is unknown.
	Update(ctx context.Context, rec *Record) (bool, error)
	// Delete reports false when the id is unknown.
	Delete(ctx context.Context, id string) (bool, error)
	ListByCategory(ctx context.Context, category Category) ([]*Record, error)
	SearchText(ctx context.Context, keyword string) ([]*Record, error)
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// fileDocument is the on-disk layout of the record file.
type fileDocument struct {
	Practices []*Record `json:"practices"`
}

// FileStore is a Store persisted as one JSON document. Every mutation
// rewrites the whole file.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	records []*Record
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenFileStore loads the record file at path, creating an empty store if it
// does not exist. A malformed file is an error: unlike the answer cache,
// records have no other copy to rebuild from.
func OpenFileStore(path string) (*FileStore, error) {
	var doc fileDocument
	found, err := jsonfile.Read(path, &doc)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeRecordLoadCorruptState, "loading record file", sigilerr.FieldPath(path))
	}

	fs := &FileStore{
		path:    path,
		records: doc.Practices,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}

	if !found {
		if err := fs.saveLocked(); err != nil {
			return nil, err
		}
		fs.logger.Debug("created record file", "path", path)
	}

	fs.logger.Debug("record store opened", "path", path, "record_count", len(fs.records))
	return fs, nil
}

// SetNowFunc overrides the time source (for testing).
func (s *FileStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFunc = fn
	s.mu.Unlock()
}

func (s *FileStore) ListAll(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, len(s.records))
	for i, r := range s.records {
		out[i] = clone(r)
	}
	return out, nil
}

func (s *FileStore) GetByID(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return clone(s.records[i]), nil
	}
	return nil, nil
}

// Add stores rec, assigning an id when it has none and stamping timestamps.
// The assigned values are written back to rec.
func (s *FileStore) Add(_ context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", sigilerr.New(sigilerr.CodeRecordInvalidInput, "record must not be nil")
	}
	if strings.TrimSpace(rec.Title) == "" {
		return "", sigilerr.New(sigilerr.CodeRecordInvalidInput, "record title must not be empty")
	}
	if rec.Category != "" && !rec.Category.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeRecordInvalidInput, "unknown category %q", rec.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	} else if s.indexOf(rec.ID) >= 0 {
		return "", sigilerr.Errorf(sigilerr.CodeRecordInvalidInput, "record %s already exists", rec.ID)
	}
	now := s.nowFunc()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	normalizeContent(rec)

	s.records = append(s.records, clone(rec))
	if err := s.saveLocked(); err != nil {
		s.records = s.records[:len(s.records)-1]
		return "", err
	}

	s.logger.Debug("record added", "record_id", rec.ID, "title", truncate(rec.Title, 30))
	return rec.ID, nil
}

func (s *FileStore) Update(_ context.Context, rec *Record) (bool, error) {
	if rec == nil || rec.ID == "" {
		return false, sigilerr.New(sigilerr.CodeRecordInvalidInput, "record id must not be empty")
	}
	if rec.Category != "" && !rec.Category.Valid() {
		return false, sigilerr.Errorf(sigilerr.CodeRecordInvalidInput, "unknown category %q", rec.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(rec.ID)
	if i < 0 {
		s.logger.Warn("record update target not found", "record_id", rec.ID)
		return false, nil
	}

	prev := s.records[i]
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.UpdatedAt = s.nowFunc()
	normalizeContent(rec)

	s.records[i] = clone(rec)
	if err := s.saveLocked(); err != nil {
		s.records[i] = prev
		return false, err
	}

	s.logger.Debug("record updated", "record_id", rec.ID)
	return true, nil
}

func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		s.logger.Warn("record delete target not found", "record_id", id)
		return false, nil
	}

	prev := s.records
	next := make([]*Record, 0, len(s.records)-1)
	next = append(next, s.records[:i]...)
	next = append(next, s.records[i+1:]...)
	s.records = next

	if err := s.saveLocked(); err != nil {
		s.records = prev
		return false, err
	}

	s.logger.Debug("record deleted", "record_id", id)
	return true, nil
}

func (s *FileStore) ListByCategory(_ context.Context, category Category) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, r := range s.records {
		if r.Category == category {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

// SearchText returns records whose title, description or tags contain
// keyword, case-insensitively.
func (s *FileStore) SearchText(_ context.Context, keyword string) ([]*Record, error) {
	needle := strings.ToLower(keyword)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, r := range s.records {
		haystack := strings.ToLower(strings.Join([]string{r.Title, r.Description, strings.Join(r.Tags, " ")}, " "))
		if strings.Contains(haystack, needle) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (s *FileStore) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *FileStore) saveLocked() error {
	doc := fileDocument{Practices: s.records}
	if doc.Practices == nil {
		doc.Practices = []*Record{}
	}
	if err := jsonfile.Write(s.path, doc); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeRecordStoreFailure, "saving record file", sigilerr.FieldPath(s.path))
	}
	return nil
}

// normalizeContent makes the content variant agree with Kind.
func normalizeContent(rec *Record) {
	switch {
	case rec.Code != nil:
		rec.Kind = ContentKindCode
		rec.Manual = nil
	case rec.Manual != nil:
		rec.Kind = ContentKindManual
	case rec.Kind == ContentKindCode:
		rec.Code = &CodeContent{}
	default:
		rec.Kind = ContentKindManual
		rec.Manual = &ManualContent{}
	}
}

func clone(r *Record) *Record {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	if r.Code != nil {
		code := *r.Code
		c.Code = &code
	}
	if r.Manual != nil {
		manual := *r.Manual
		c.Manual = &manual
	}
	return &c
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
