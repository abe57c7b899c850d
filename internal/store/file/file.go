// Package file keeps execution state as one JSON document per export in a
// local directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xeroexport/pkg/models"
)

// Store is a directory of state documents named after the export key
type Store struct {
	dir string
}

// New creates the directory if it does not exist
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// Load returns an empty state when the export has no document yet
func (s *Store) Load(ctx context.Context, exportKey string) (*models.State, error) {
	path, err := s.path(exportKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", exportKey, err)
	}

	state := models.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", exportKey, err)
	}
	return state, nil
}

// Save writes to a temporary file and renames it over the previous document,
// so a reader never sees a partial write.
func (s *Store) Save(ctx context.Context, exportKey string, state *models.State) error {
	path, err := s.path(exportKey)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: encode %s: %w", exportKey, err)
	}

	tmp, err := os.CreateTemp(s.dir, exportKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write %s: %w", exportKey, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: sync %s: %w", exportKey, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("file store: replace %s: %w", exportKey, err)
	}
	return nil
}

func (s *Store) path(exportKey string) (string, error) {
	if exportKey == "" || strings.ContainsAny(exportKey, `/\`) || exportKey == "." || exportKey == ".." {
		return "", fmt.Errorf("file store: invalid export key %q", exportKey)
	}
	return filepath.Join(s.dir, exportKey+".json"), nil
}
