// Package store defines the versioned document store that holds all
// site content as JSON files, keyed by path. Every document carries an
// opaque revision token; writes and deletes are compare-and-swap on that
// token so concurrent writers fail safely instead of clobbering each
// other. Backends: GitHub repository contents, SQLite, and an in-memory
// store for tests and development.
package store

import (
	"context"
	"errors"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound is returned when a document (or directory) does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when the supplied revision token no longer
	// matches the document's current revision.
	ErrConflict = errors.New("revision conflict")
)

// Entry describes one file in a listed directory.
type Entry struct {
	Name     string
	Path     string
	Revision string
}

// Document is one stored file with its current revision token.
type Document struct {
	Path     string
	Content  []byte
	Revision string
}

// Store is a versioned key-value document store keyed by path.
type Store interface {
	// List enumerates the file entries directly under dir.
	List(ctx context.Context, dir string) ([]Entry, error)

	// Read fetches one document and its current revision token.
	Read(ctx context.Context, path string) (Document, error)

	// Write creates or updates a document and returns the new revision.
	// An empty expectedRevision creates the document and fails with
	// ErrConflict if it already exists; otherwise the write fails with
	// ErrConflict when expectedRevision is stale. message is a human
	// commit message for backends that record one.
	Write(ctx context.Context, path string, content []byte, expectedRevision, message string) (string, error)

	// Delete removes a document, with the same conflict semantics as Write.
	Delete(ctx context.Context, path, expectedRevision, message string) error
}
