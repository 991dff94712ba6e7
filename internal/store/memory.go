package store

import (
	"context"
	"fmt"
	gopath "path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process store with the same compare-and-swap semantics
// as the persistent backends. It backs tests and `store.backend: memory`
// development runs; nothing survives a restart.
type Memory struct {
	mu   sync.Mutex
	docs map[string]Document
	seq  int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

func (m *Memory) List(ctx context.Context, dir string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(dir, "/") + "/"

	entries := make([]Entry, 0)
	for p, doc := range m.docs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if strings.Contains(strings.TrimPrefix(p, prefix), "/") {
			continue
		}
		entries = append(entries, Entry{Name: gopath.Base(p), Path: p, Revision: doc.Revision})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *Memory) Read(ctx context.Context, path string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	// Copy content so callers cannot mutate the stored bytes.
	out := doc
	out.Content = append([]byte(nil), doc.Content...)
	return out, nil
}

func (m *Memory) Write(ctx context.Context, path string, content []byte, expectedRevision, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.docs[path]
	switch {
	case !ok && expectedRevision != "":
		return "", fmt.Errorf("write %s: %w", path, ErrNotFound)
	case ok && expectedRevision == "":
		return "", fmt.Errorf("write %s: already exists: %w", path, ErrConflict)
	case ok && current.Revision != expectedRevision:
		return "", fmt.Errorf("write %s: %w", path, ErrConflict)
	}

	m.seq++
	rev := fmt.Sprintf("rev-%d", m.seq)
	m.docs[path] = Document{
		Path:     path,
		Content:  append([]byte(nil), content...),
		Revision: rev,
	}
	return rev, nil
}

func (m *Memory) Delete(ctx context.Context, path, expectedRevision, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.docs[path]
	if !ok {
		return fmt.Errorf("delete %s: %w", path, ErrNotFound)
	}
	if current.Revision != expectedRevision {
		return fmt.Errorf("delete %s: %w", path, ErrConflict)
	}
	delete(m.docs, path)
	return nil
}
