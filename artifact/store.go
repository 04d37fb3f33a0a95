// Package artifact persists a run's raw and structured outputs.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/use-agent/distill/models"
)

// Store writes named artifacts in one piece.
type Store interface {
	// Put stores data under name and returns where it was written.
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// LocalStore writes artifacts into a directory on the local filesystem.
type LocalStore struct {
	Dir string
}

// NewLocalStore creates a LocalStore rooted at dir. The directory is created
// on first write.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

// Put writes data to Dir/name through a temporary file and a rename, so a
// reader never sees a partially written artifact. An existing file of the
// same name is replaced.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", models.NewPipelineError(models.ErrCodeStorage, "create output directory", err)
	}

	path := filepath.Join(s.Dir, name)

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return "", models.NewPipelineError(models.ErrCodeStorage, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", models.NewPipelineError(models.ErrCodeStorage, "write "+name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", models.NewPipelineError(models.ErrCodeStorage, "close "+name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", models.NewPipelineError(models.ErrCodeStorage, "chmod "+name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", models.NewPipelineError(models.ErrCodeStorage, "rename "+name, err)
	}
	return path, nil
}

// MultiStore writes every artifact to each store in order and reports the
// first store's location.
type MultiStore []Store

// Put implements Store. The first failure stops the write.
func (m MultiStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if len(m) == 0 {
		return "", models.NewPipelineError(models.ErrCodeStorage, "no artifact store configured", nil)
	}

	var first string
	for i, s := range m {
		loc, err := s.Put(ctx, name, data)
		if err != nil {
			if models.CodeOf(err) == models.ErrCodeStorage {
				return "", err
			}
			return "", models.NewPipelineError(models.ErrCodeStorage, fmt.Sprintf("store %d: put %s", i, name), err)
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}
