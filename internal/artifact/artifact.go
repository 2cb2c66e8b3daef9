// Package artifact stores rendered collages under job-derived names.
//
// The file name collage_<job_id>.png is a compatibility contract shared by
// producers, workers, and retrieval clients.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"collage/internal/fileutil"
	"collage/internal/imaging"
	"collage/internal/services"
)

const namePrefix = "collage_"

// Store persists artifacts in a single directory.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the artifact directory.
func (s *Store) Root() string {
	return s.root
}

// Name returns the artifact file name for a job identifier.
func Name(id string) string {
	return namePrefix + id + "." + imaging.Extension
}

// Path returns the absolute location of the artifact for id.
func (s *Store) Path(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, Name(id)), nil
}

// Write renders the artifact for id through render and moves it into place atomically.
func (s *Store) Write(ctx context.Context, id string, render func(io.Writer) error) (string, error) {
	path, err := s.Path(id)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", services.Wrap(services.ErrRender, "artifact", "create directory", s.root, err)
	}
	if err := fileutil.WriteAtomic(path, 0o644, render); err != nil {
		if errors.Is(err, services.ErrRender) {
			return "", err
		}
		return "", services.Wrap(services.ErrRender, "artifact", "write", path, err)
	}
	return path, nil
}

// Open returns a reader over the artifact for id, or services.ErrNotFound.
func (s *Store) Open(id string) (*os.File, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "artifact", "open", Name(id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Exists reports whether the artifact for id is on disk.
func (s *Store) Exists(id string) (bool, error) {
	path, err := s.Path(id)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact: %w", err)
	}
	return !info.IsDir(), nil
}

// Remove deletes the artifact for id; a missing file is not an error.
func (s *Store) Remove(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	return fileutil.RemoveIfExists(path)
}

// validateID keeps identifiers from escaping the artifact directory.
func validateID(id string) error {
	if id == "" {
		return services.Wrap(services.ErrValidation, "artifact", "validate id", "empty identifier", nil)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return services.Wrap(services.ErrValidation, "artifact", "validate id",
				fmt.Sprintf("identifier %q contains %q", id, r), nil)
		}
	}
	return nil
}
