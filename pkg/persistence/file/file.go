// Package file provides a file-based implementation of the persistence.Store
// contract. Each key becomes one JSON file under the root directory.
package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runbookd/runbookd/pkg/persistence"
)

const fileMode = 0o644

// Store implements persistence.Store on the local file system.
type Store struct {
	root string
}

// NewStore creates a file store rooted at the given directory. A "file://"
// URL prefix is stripped so database-url flags work unchanged.
func NewStore(root string) (*Store, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if err := os.MkdirAll(cleanRoot, 0o755); err != nil {
		return nil, persistence.NewStoreError("Init", cleanRoot, err)
	}

	return &Store{root: cleanRoot}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, key+".json")
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	if err := os.WriteFile(s.path(key), value, fileMode); err != nil {
		return persistence.NewStoreError("Put", key, err)
	}

	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("Get", key, persistence.ErrKeyNotFound)
		}

		return nil, persistence.NewStoreError("Get", key, err)
	}

	return data, nil
}

func (s *Store) ListKeys(_ context.Context, prefix string) ([]string, error) {
	entries, err := fs.Glob(os.DirFS(s.root), "*.json")
	if err != nil {
		return nil, persistence.NewStoreError("ListKeys", prefix, err)
	}

	keys := make([]string, 0, len(entries))

	for _, entry := range entries {
		key := strings.TrimSuffix(entry, ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// HealthCheck verifies the root directory still exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return persistence.NewStoreError("HealthCheck", s.root, err)
	}

	return nil
}

// Close is a no-op for file storage.
func (s *Store) Close(_ context.Context) error {
	return nil
}
