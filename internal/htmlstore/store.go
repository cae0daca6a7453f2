// Package htmlstore implements the page archive: one raw HTML file per
// fetched entity, keyed by (category, id).
//
// File existence is the crawler's idempotency signal. A present file means
// the page was fetched in some earlier run and the cached bytes are reused
// instead of the network. Only raw markup is stored, never derived records,
// so extraction changes retroactively apply to cached pages without
// re-fetching.
package htmlstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Entity categories. Each category is a subdirectory of the store root.
const (
	CategorySemesters = "semesters"
	CategoryCourses   = "courses"
	CategoryUsers     = "users"
)

// Store is a content cache of raw HTML pages under a root directory.
//
// Concurrency: Exists and Read are safe to call concurrently. Write is safe
// for concurrent calls targeting distinct keys; the crawler's dedup check
// ensures two workers never write the same key, up to the documented
// check-then-act race which at worst rewrites identical content.
type Store struct {
	root string
}

// New creates a Store rooted at dir and ensures the category subdirectories
// exist.
func New(dir string) (*Store, error) {
	s := &Store{root: dir}
	for _, category := range []string{CategorySemesters, CategoryCourses, CategoryUsers} {
		if err := os.MkdirAll(filepath.Join(dir, category), 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", category, err)
		}
	}
	return s, nil
}

// Path returns the file path for the given key.
func (s *Store) Path(category, id string) string {
	return filepath.Join(s.root, category, id+".html")
}

// Exists reports whether a page is already archived under the given key.
func (s *Store) Exists(category, id string) bool {
	_, err := os.Stat(s.Path(category, id))
	return err == nil
}

// Read returns the archived markup for the given key.
func (s *Store) Read(category, id string) (string, error) {
	data, err := os.ReadFile(s.Path(category, id))
	if err != nil {
		return "", fmt.Errorf("read cached page %s/%s: %w", category, id, err)
	}
	return string(data), nil
}

// Write archives markup under the given key. Callers only write keys that
// Exists reported absent, so there are no overwrite semantics to define.
func (s *Store) Write(category, id, content string) error {
	if err := os.WriteFile(s.Path(category, id), []byte(content), 0600); err != nil {
		return fmt.Errorf("write cached page %s/%s: %w", category, id, err)
	}
	return nil
}
