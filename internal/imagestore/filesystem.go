package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileSystemStore keeps images as flat files in a single directory.
type FileSystemStore struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

var _ Store = (*FileSystemStore)(nil)

func NewFileSystemStore(dir string, log *slog.Logger) (*FileSystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	return &FileSystemStore{
		dir: dir,
		log: log.With(slog.String("component", "imagestore.fs"), slog.String("dir", dir)),
		now: time.Now,
	}, nil
}

func (s *FileSystemStore) Save(ctx context.Context, originalName string, r io.Reader) (publicPath string, err error) {
	format, content, err := Sniff(r)
	if err != nil {
		return "", err
	}

	name := NewName(originalName, format, s.now())
	filename := filepath.Join(s.dir, name)

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "image store failed", "name", name, "error", err)
		} else {
			s.log.DebugContext(ctx, "image stored", "name", name, "format", format)
		}
	}()

	// write to a temp file first so a half-written upload is never served
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}

	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod: %w", err)
	}

	if err = os.Rename(tmp.Name(), filename); err != nil {
		return "", fmt.Errorf("rename: %w", err)
	}

	return PublicPath(name), nil
}

func (s *FileSystemStore) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := CheckName(name); err != nil {
		return nil, Info{}, ErrNotFound
	}

	file, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("open: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, Info{}, fmt.Errorf("stat: %w", err)
	}

	if stat.IsDir() {
		_ = file.Close()
		return nil, Info{}, ErrNotFound
	}

	return file, Info{
		Name:        name,
		Size:        stat.Size(),
		ContentType: ContentTypeFor(name),
		ModTime:     stat.ModTime(),
	}, nil
}

func (s *FileSystemStore) Delete(ctx context.Context, publicPath string) error {
	name, err := NameFromPath(publicPath)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove: %w", err)
	}

	s.log.DebugContext(ctx, "image deleted", "name", name)
	return nil
}
