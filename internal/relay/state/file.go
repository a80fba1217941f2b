package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"channel_relay/internal/logger"
)

// FileStore keeps records in a local JSON file, replaced atomically on save.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (Records, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.L().Infof("No forward state at %s, starting empty", s.path)
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read forward state %s: %w", s.path, err)
	}

	records, err := Decode(data)
	if err != nil {
		logger.L().Warnf("Forward state %s is corrupt, starting empty: %v", s.path, err)
		return Records{}, nil
	}
	return records, nil
}

// Save implements Store. The new content is written to a temp file in the same
// directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, records Records) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".forward-state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace forward state %s: %w", s.path, err)
	}
	return nil
}
