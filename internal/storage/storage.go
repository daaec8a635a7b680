// Package storage holds uploaded file content. Only local disk is implemented;
// the cloud providers exist so configuration can name them, and every call on
// them fails with apperr.ErrNotImplemented.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dharsanguruparan/esubmit/internal/apperr"
	"github.com/dharsanguruparan/esubmit/internal/model"
)

// Blobs stores file content under generated names.
type Blobs interface {
	// Location names the backend recorded on each FileRecord.
	Location() model.StorageLocation
	// Put writes data under name and returns the path it was stored at.
	Put(ctx context.Context, name string, data []byte) (string, error)
	// Open returns a reader for a stored path.
	Open(ctx context.Context, path string) (io.ReadSeekCloser, error)
	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)
	// Remove deletes path. Removing a missing path is not an error.
	Remove(ctx context.Context, path string) error
}

// New returns the blob store for provider.
func New(provider model.StorageLocation, uploadDir string) (Blobs, error) {
	switch provider {
	case "", model.StorageLocal:
		return NewLocal(uploadDir)
	case model.StorageS3, model.StorageAzure, model.StorageGCS:
		return unimplemented{provider: provider}, nil
	}
	return nil, fmt.Errorf("unknown storage provider %q", provider)
}

// Local keeps files in a directory on disk.
type Local struct {
	dir string
}

// NewLocal creates dir when needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, apperr.Storage("create upload dir", err)
	}
	return &Local{dir: dir}, nil
}

// Location implements Blobs.
func (l *Local) Location() model.StorageLocation { return model.StorageLocal }

// Put implements Blobs.
func (l *Local) Put(_ context.Context, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", apperr.Invalid("invalid storage name %q", name)
	}
	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", apperr.Storage("write upload", err)
	}
	return path, nil
}

// Open implements Blobs.
func (l *Local) Open(_ context.Context, path string) (io.ReadSeekCloser, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("file content", filepath.Base(path))
	}
	if err != nil {
		return nil, apperr.Storage("open upload", err)
	}
	return f, nil
}

// Exists implements Blobs.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("stat upload", err)
	}
	return true, nil
}

// Remove implements Blobs.
func (l *Local) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Storage("remove upload", err)
	}
	return nil
}

type unimplemented struct {
	provider model.StorageLocation
}

func (u unimplemented) err() error {
	return fmt.Errorf("%s storage: %w", u.provider, apperr.ErrNotImplemented)
}

func (u unimplemented) Location() model.StorageLocation { return u.provider }

func (u unimplemented) Put(context.Context, string, []byte) (string, error) {
	return "", u.err()
}

func (u unimplemented) Open(context.Context, string) (io.ReadSeekCloser, error) {
	return nil, u.err()
}

func (u unimplemented) Exists(context.Context, string) (bool, error) {
	return false, u.err()
}

func (u unimplemented) Remove(context.Context, string) error {
	return u.err()
}
