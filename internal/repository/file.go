// Package repository provides the storage backends for the vault registry.
// Every backend persists the same canonical document produced by
// models.Marshal, so front ends sharing a location see the same data.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atinyakov/passe/internal/models"
)

// FileStore keeps the registry document in a single JSON file.
type FileStore struct {
	// Path is the document location, typically ~/.passe.json.
	Path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the document. A missing file is an empty registry.
func (s *FileStore) Load(_ context.Context) (models.Document, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return models.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrPersistence, s.Path, err)
	}
	return models.Unmarshal(data)
}

// Save replaces the document atomically: the new content is written to a
// temporary file in the same directory, synced, and renamed over Path.
func (s *FileStore) Save(_ context.Context, doc models.Document) error {
	data, err := models.Marshal(doc)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.Path, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", models.ErrPersistence, s.Path, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
