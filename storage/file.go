package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/YuminosukeSato/salescv/pkg/errors"
)

const xzExt = ".xz"

// FileStore keeps each artifact in its own file under Root. Writes go to a
// temp file in the target directory and are renamed into place, so a
// cancelled or crashed writer never leaves a partial artifact behind.
type FileStore struct {
	Root string
	// Compress stores every blob xz-compressed, with an ".xz" suffix.
	Compress bool
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, compress bool) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.NewIOError("storage.NewFileStore", root, err)
	}
	return &FileStore{Root: root, Compress: compress}, nil
}

func (s *FileStore) path(key string) string {
	p := filepath.Join(s.Root, filepath.FromSlash(key))
	if s.Compress {
		p += xzExt
	}
	return p
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) (err error) {
	const op = "FileStore.Put"
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.NewIOError(op, key, err)
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(op, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.NewIOError(op, key, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if werr := s.write(tmp, data); werr != nil {
		tmp.Close()
		return errors.NewIOError(op, key, werr)
	}
	if cerr := tmp.Close(); cerr != nil {
		return errors.NewIOError(op, key, cerr)
	}
	if cerr := ctx.Err(); cerr != nil {
		return errors.NewIOError(op, key, cerr)
	}
	if rerr := os.Rename(tmp.Name(), path); rerr != nil {
		return errors.NewIOError(op, key, rerr)
	}
	return nil
}

func (s *FileStore) write(w io.Writer, data []byte) error {
	if !s.Compress {
		_, err := w.Write(data)
		return err
	}
	zw, err := xz.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		return err
	}
	return zw.Close()
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "FileStore.Get"
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewIOError(op, key, err)
	}

	raw, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, errors.NewIOError(op, key, ErrNotFound)
	}
	if err != nil {
		return nil, errors.NewIOError(op, key, err)
	}
	if !s.Compress {
		return raw, nil
	}

	zr, err := xz.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.NewIOError(op, key, err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.NewIOError(op, key, err)
	}
	return data, nil
}

// Exists implements Store.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	info, err := os.Stat(s.path(key))
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.NewIOError("FileStore.Exists", key, err)
	}
}
