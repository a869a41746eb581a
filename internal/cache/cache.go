// Package cache persists model outputs across runs so an unchanged resume and
// prompt version never trigger a second billing for the same call.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Cache is the key-value store consulted before every model call. It is an
// explicit dependency of each component that talks to the model; there is no
// process-wide handle.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// FileCache stores one file per key in a directory that survives across
// runs. The operator clears the directory to force re-evaluation.
type FileCache struct {
	dir string
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %q: %w", dir, err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put writes the entry via a temp file and rename so an interrupted run
// never leaves a partial entry behind. Writes are idempotent per key.
func (c *FileCache) Put(key string, value []byte) error {
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), c.path(key))
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
