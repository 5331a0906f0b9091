package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// LocalStore writes uploads under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Wrapf(err, "create upload dir %s", root)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.Base(key))
}

// Save streams r to disk. A partial file is removed on error.
func (s *LocalStore) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	path := s.path(key)
	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(err, "create upload")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return apperrors.Wrap(err, "write upload")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return apperrors.Wrap(err, "close upload")
	}
	return nil
}

// Fetch copies the stored upload to localPath
func (s *LocalStore) Fetch(_ context.Context, key, localPath string) error {
	src, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFound("upload", key)
		}
		return apperrors.Wrap(err, "open upload")
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return apperrors.Wrap(err, "create local copy")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return apperrors.Wrap(err, "copy upload")
	}
	return dst.Close()
}

// Remove deletes the upload. Missing files are not an error.
func (s *LocalStore) Remove(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(err, "remove upload")
	}
	return nil
}
