package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"audiolib/config"
)

var (
	// ErrAssetNotFound means the reference does not resolve to a readable asset.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrInvalidRef is returned for empty references or ones escaping the store root.
	ErrInvalidRef = errors.New("invalid asset reference")
)

// AssetInfo describes a stored asset.
type AssetInfo struct {
	Ref         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Usage summarises the assets stored under a prefix.
type Usage struct {
	Objects      int64
	Bytes        int64
	LastModified time.Time
}

func (u *Usage) add(size int64, mod time.Time) {
	u.Objects++
	u.Bytes += size
	if mod.After(u.LastModified) {
		u.LastModified = mod
	}
}

// AssetStore maps asset references to stored bytes.
//
// Open must give every caller an independent reader: no read cursor is shared
// between two readers of the same reference.
type AssetStore interface {
	// Stat reports the asset's size, or ErrAssetNotFound.
	Stat(ctx context.Context, ref string) (AssetInfo, error)
	// Open returns a reader over exactly length bytes starting at offset.
	Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error)
	Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, ref string) error
	Usage(ctx context.Context, prefix string) (Usage, error)
}

// New builds the asset store selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (AssetStore, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal, "":
		return NewLocalStore(cfg.UploadDir), nil
	case config.StorageMinio:
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// cleanRef normalises a slash separated reference and rejects escapes from the root.
func cleanRef(ref string) (string, error) {
	if strings.ContainsRune(ref, 0) {
		return "", ErrInvalidRef
	}
	ref = strings.ReplaceAll(ref, "\\", "/")
	if strings.HasPrefix(ref, "../") || strings.Contains(ref, "/../") || ref == ".." {
		return "", ErrInvalidRef
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+ref), "/")
	if cleaned == "" {
		return "", ErrInvalidRef
	}
	return cleaned, nil
}

// sectionReadCloser reads a bounded window of a file and closes the file.
type sectionReadCloser struct {
	*io.SectionReader
	closer io.Closer
}

func (s *sectionReadCloser) Close() error {
	return s.closer.Close()
}
