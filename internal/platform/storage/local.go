package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// LocalStore keeps files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes r to key, replacing an existing file.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return f.Close()
}

// Open returns the file stored at key.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: %s: %w", key, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", key, err)
	}
	return f, nil
}
