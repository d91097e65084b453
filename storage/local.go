package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore keeps assets on a filesystem rooted at a directory.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore returns a store rooted at dir on the OS filesystem.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewLocalStoreFs wraps an existing afero filesystem, e.g. afero.NewMemMapFs in tests.
func NewLocalStoreFs(fsys afero.Fs) *LocalStore {
	return &LocalStore{fs: fsys}
}

func (s *LocalStore) name(ref string) (string, error) {
	cleaned, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(cleaned), nil
}

// Stat implements AssetStore.
func (s *LocalStore) Stat(ctx context.Context, ref string) (AssetInfo, error) {
	name, err := s.name(ref)
	if err != nil {
		return AssetInfo{}, err
	}
	info, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AssetInfo{}, ErrAssetNotFound
		}
		return AssetInfo{}, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		return AssetInfo{}, ErrAssetNotFound
	}
	return AssetInfo{Ref: ref, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Open implements AssetStore. Each call opens its own file handle and reads
// through ReadAt, so concurrent readers never share an offset.
func (s *LocalStore) Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error) {
	name, err := s.name(ref)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("open %s: invalid window %d+%d", ref, offset, length)
	}
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(f, offset, length),
		closer:        f,
	}, nil
}

// Put implements AssetStore.
func (s *LocalStore) Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error {
	name, err := s.name(ref)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", ref, err)
	}
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.fs.Remove(name)
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return f.Close()
}

// Remove implements AssetStore.
func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	name, err := s.name(ref)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrAssetNotFound
		}
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	return nil
}

// Usage implements AssetStore.
func (s *LocalStore) Usage(ctx context.Context, prefix string) (Usage, error) {
	root := "."
	if prefix != "" {
		cleaned, err := cleanRef(prefix)
		if err != nil {
			return Usage{}, err
		}
		root = filepath.FromSlash(path.Clean(cleaned))
	}

	var u Usage
	err := afero.Walk(s.fs, root, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			u.add(info.Size(), info.ModTime())
		}
		return ctx.Err()
	})
	if err != nil {
		return Usage{}, fmt.Errorf("walk %s: %w", root, err)
	}
	return u, nil
}
