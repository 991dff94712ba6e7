package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	gopath "path"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path     TEXT PRIMARY KEY,
	content  BLOB NOT NULL,
	revision TEXT NOT NULL
);
`

// SQLite is a local document store backend, mainly for development and
// self-hosted deployments that do not want a GitHub repository behind
// the CMS. Revisions are random tokens regenerated on every write, and
// compare-and-swap is enforced inside a transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) List(ctx context.Context, dir string) ([]Entry, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, revision FROM documents WHERE path LIKE ? ORDER BY path`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var p, rev string
		if err := rows.Scan(&p, &rev); err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		// Direct children only; nested directories are separate listings.
		if strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		entries = append(entries, Entry{Name: gopath.Base(p), Path: p, Revision: rev})
	}
	return entries, rows.Err()
}

func (s *SQLite) Read(ctx context.Context, path string) (Document, error) {
	var doc Document
	doc.Path = path

	err := s.db.QueryRowContext(ctx,
		`SELECT content, revision FROM documents WHERE path = ?`, path).
		Scan(&doc.Content, &doc.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return doc, nil
}

func (s *SQLite) Write(ctx context.Context, path string, content []byte, expectedRevision, message string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	defer tx.Rollback()

	newRev := newRevision()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT revision FROM documents WHERE path = ?`, path).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expectedRevision != "" {
			return "", fmt.Errorf("write %s: %w", path, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, content, revision) VALUES (?, ?, ?)`,
			path, content, newRev); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	case err != nil:
		return "", fmt.Errorf("write %s: %w", path, err)
	default:
		if expectedRevision == "" {
			return "", fmt.Errorf("write %s: already exists: %w", path, ErrConflict)
		}
		if current != expectedRevision {
			return "", fmt.Errorf("write %s: %w", path, ErrConflict)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET content = ?, revision = ? WHERE path = ? AND revision = ?`,
			content, newRev, path, expectedRevision); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return newRev, nil
}

func (s *SQLite) Delete(ctx context.Context, path, expectedRevision, message string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE path = ? AND revision = ?`, path, expectedRevision)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if n == 0 {
		// Distinguish a stale token from a missing document.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM documents WHERE path = ?`, path).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("delete %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", path, ErrConflict)
	}
	return nil
}

// newRevision returns a 40-char random hex token, sized like a git sha
// so the two backends are interchangeable to callers.
func newRevision() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand does not fail on supported platforms
	}
	return hex.EncodeToString(buf)
}
