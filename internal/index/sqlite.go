// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ Backend = (*SQLiteBackend)(nil)

// SQLiteBackend persists entries in a SQLite database and ranks them with
// sqlite-vec's cosine distance.
type SQLiteBackend struct {
	db         *sql.DB
	path       string
	dimensions int
}

var flagColumns = map[Flag]string{
	FlagVisualDiagram:   "has_visual_diagram",
	FlagRenderedPreview: "has_rendered_preview",
	FlagImage:           "has_image",
}

// NewSQLiteBackend opens (or creates) the database at dbPath. A file that is
// not a readable index, or one built for a different dimension, is logged and
// replaced with an empty database; the caller rebuilds from the record store.
func NewSQLiteBackend(dbPath string, dimensions int, logger *slog.Logger) (*SQLiteBackend, error) {
	if dimensions <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeIndexInvalidInput, "index dimensions must be positive, got %d", dimensions)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "creating index directory", sigilerr.FieldPath(dbPath))
	}

	b, err := openSQLite(dbPath, dimensions)
	if err == nil {
		return b, nil
	}
	if !sigilerr.IsCorruptState(err) {
		return nil, err
	}

	logger.Warn("index database unusable, recreating",
		"path", dbPath,
		"error", err,
	)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if rmErr := os.Remove(dbPath + suffix); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, sigilerr.Wrap(rmErr, sigilerr.CodeIndexDatabaseFailure, "removing corrupt index", sigilerr.FieldPath(dbPath))
		}
	}
	return openSQLite(dbPath, dimensions)
}

func openSQLite(dbPath string, dimensions int) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "opening sqlite db", sigilerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Wrap(err, sigilerr.CodeIndexLoadCorruptState, "pinging sqlite db", sigilerr.FieldPath(dbPath))
	}

	if err := migrateIndex(db, dimensions); err != nil {
		_ = db.Close()
		return nil, sigilerr.With(err, sigilerr.FieldPath(dbPath))
	}

	return &SQLiteBackend{db: db, path: dbPath, dimensions: dimensions}, nil
}

func migrateIndex(db *sql.DB, dimensions int) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS index_entries (
	id                   TEXT PRIMARY KEY,
	seq                  INTEGER NOT NULL,
	embedding            BLOB NOT NULL,
	category             TEXT NOT NULL DEFAULT '',
	has_visual_diagram   INTEGER NOT NULL DEFAULT 0,
	has_rendered_preview INTEGER NOT NULL DEFAULT 0,
	has_image            INTEGER NOT NULL DEFAULT 0,
	metadata             TEXT NOT NULL DEFAULT '{}',
	document             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_index_entries_category ON index_entries(category);`
	if _, err := db.Exec(ddl); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexLoadCorruptState, "creating index tables")
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM index_meta WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec(`INSERT INTO index_meta(key, value) VALUES ('dimensions', ?)`, strconv.Itoa(dimensions)); err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "recording index dimensions")
		}
		return nil
	case err != nil:
		return sigilerr.Wrap(err, sigilerr.CodeIndexLoadCorruptState, "reading index dimensions")
	}

	if got, convErr := strconv.Atoi(stored); convErr != nil || got != dimensions {
		return sigilerr.Errorf(sigilerr.CodeIndexLoadCorruptState,
			"index built for dimension %q, configured %d", stored, dimensions)
	}
	return nil
}

// Path is the database file backing b.
func (b *SQLiteBackend) Path() string { return b.path }

const upsertEntryQ = `
INSERT INTO index_entries(id, seq, embedding, category, has_visual_diagram, has_rendered_preview, has_image, metadata, document)
VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM index_entries), ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	embedding = excluded.embedding,
	category = excluded.category,
	has_visual_diagram = excluded.has_visual_diagram,
	has_rendered_preview = excluded.has_rendered_preview,
	has_image = excluded.has_image,
	metadata = excluded.metadata,
	document = excluded.document`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (b *SQLiteBackend) Upsert(ctx context.Context, e Entry) error {
	return b.upsert(ctx, b.db, e)
}

func (b *SQLiteBackend) upsert(ctx context.Context, db execer, e Entry) error {
	if len(e.Vector) != b.dimensions {
		return sigilerr.Errorf(sigilerr.CodeIndexInvalidInput,
			"vector for %s has dimension %d, want %d", e.ID, len(e.Vector), b.dimensions)
	}
	blob, err := sqlite_vec.SerializeFloat32(e.Vector)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexInvalidInput, "serializing embedding", sigilerr.FieldRecordID(e.ID))
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexInvalidInput, "marshalling metadata", sigilerr.FieldRecordID(e.ID))
	}

	flags := e.Metadata.Flags()
	_, err = db.ExecContext(ctx, upsertEntryQ,
		e.ID, blob, string(e.Metadata.Category),
		flags.HasVisualDiagram, flags.HasRenderedPreview, flags.HasImage,
		string(metaJSON), e.Document,
	)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "upserting index entry", sigilerr.FieldRecordID(e.ID))
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM index_entries WHERE id = ?`, id)
	if err != nil {
		return false, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "deleting index entry", sigilerr.FieldRecordID(id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "counting deleted rows")
	}
	return n > 0, nil
}

// ReplaceAll runs in one transaction so readers never see a partial set.
func (b *SQLiteBackend) ReplaceAll(ctx context.Context, entries []Entry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "clearing index entries")
	}
	for _, e := range entries {
		if err := b.upsert(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "committing rebuild")
	}
	return nil
}

func (b *SQLiteBackend) Search(ctx context.Context, query []float32, f Filter, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	if len(query) != b.dimensions {
		return nil, sigilerr.Errorf(sigilerr.CodeIndexInvalidInput,
			"query vector has dimension %d, want %d", len(query), b.dimensions)
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIndexInvalidInput, "serializing query")
	}

	var (
		where []string
		args  = []any{blob}
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if len(f.Predicate.AnyOf) > 0 {
		var ors []string
		for _, flag := range f.Predicate.AnyOf {
			col, ok := flagColumns[flag]
			if !ok {
				return nil, sigilerr.Errorf(sigilerr.CodeIndexInvalidInput, "unknown predicate flag %q", flag)
			}
			ors = append(ors, col+" = 1")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	var q strings.Builder
	q.WriteString(`SELECT id, metadata, document, score FROM (
	SELECT id, seq, metadata, document, COALESCE(1.0 - vec_distance_cosine(embedding, ?), 0.0) AS score
	FROM index_entries`)
	if len(where) > 0 {
		q.WriteString("\n\tWHERE " + strings.Join(where, " AND "))
	}
	q.WriteString("\n)")
	if f.MinScore != nil {
		q.WriteString("\nWHERE score >= ?")
		args = append(args, *f.MinScore)
	}
	q.WriteString("\nORDER BY score DESC, seq ASC\nLIMIT ?")
	args = append(args, k)

	rows, err := b.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "searching index")
	}
	defer func() { _ = rows.Close() }()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var (
			m        Match
			metaJSON string
		)
		if err := rows.Scan(&m.ID, &metaJSON, &m.Document, &m.Score); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "scanning search result")
		}
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeIndexLoadCorruptState, "unmarshalling metadata", sigilerr.FieldRecordID(m.ID))
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "iterating search results")
	}
	return matches, nil
}

func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_entries`).Scan(&n); err != nil {
		return 0, sigilerr.Wrap(err, sigilerr.CodeIndexDatabaseFailure, "counting index entries")
	}
	return n, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
