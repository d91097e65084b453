package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"audiolib/config"
	"audiolib/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps assets as objects in a MinIO (S3 compatible) bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 初始化 MinIO 客户端并确保存储桶存在
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("MinIO 客户端初始化成功",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Stat implements AssetStore.
func (s *MinioStore) Stat(ctx context.Context, ref string) (AssetInfo, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return AssetInfo{}, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return AssetInfo{}, ErrAssetNotFound
		}
		return AssetInfo{}, fmt.Errorf("stat object %s: %w", key, err)
	}
	return AssetInfo{Ref: ref, Size: info.Size, ContentType: info.ContentType, ModTime: info.LastModified}, nil
}

// Open implements AssetStore with a ranged GET, so each reader is its own
// HTTP request against the bucket. A missing key is reported here, never
// from the returned reader.
func (s *MinioStore) Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("open %s: invalid window %d+%d", ref, offset, length)
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, fmt.Errorf("set range on %s: %w", key, err)
	}
	// Core.GetObject sends the request now. Client.GetObject defers it to the
	// first Read, after the caller has already committed a status line.
	body, _, _, err := minio.Core{Client: s.client}.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return body, nil
}

// Put implements AssetStore.
func (s *MinioStore) Put(ctx context.Context, ref string, r io.Reader, size int64, contentType string) error {
	key, err := cleanRef(ref)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Remove implements AssetStore.
func (s *MinioStore) Remove(ctx context.Context, ref string) error {
	key, err := cleanRef(ref)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrAssetNotFound
		}
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// Usage implements AssetStore.
func (s *MinioStore) Usage(ctx context.Context, prefix string) (Usage, error) {
	var u Usage
	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return Usage{}, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		u.add(object.Size, object.LastModified)
	}
	return u, nil
}
