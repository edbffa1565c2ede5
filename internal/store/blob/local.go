// Package blob implements the attachment blob store on the local
// filesystem. Attachment URLs are served by the upload routes; the store
// only deals in bare file names.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"supportchat/internal/domain"
)

type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

var _ domain.BlobStore = (*LocalStore)(nil)

func (s *LocalStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if filepath.Base(name) != name {
		return "", domain.ErrPayloadInvalid
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

func (s *LocalStore) Remove(ctx context.Context, name string) error {
	if filepath.Base(name) != name {
		return domain.ErrPayloadInvalid
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Path returns the on-disk path for a stored blob name, guarding against
// path traversal.
func (s *LocalStore) Path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", domain.ErrPayloadInvalid
	}
	return filepath.Join(s.dir, name), nil
}
