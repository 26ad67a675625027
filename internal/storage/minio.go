package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	region          string
	useSSL          bool
	createBucket    bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL: false,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

type MinioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

var _ ObjectStore = (*MinioStore)(nil)

func NewMinioStore(ctx context.Context, opts ...MinioOpts) (*MinioStore, error) {
	cfg := newConfig(opts...)
	if cfg.bucket == "" {
		return nil, fmt.Errorf("minio: bucket is required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, err
	}

	if cfg.createBucket {
		exists, err := client.BucketExists(ctx, cfg.bucket)
		if err != nil {
			return nil, fmt.Errorf("minio: checking bucket %s: %w", cfg.bucket, err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.bucket, minio.MakeBucketOptions{Region: cfg.region}); err != nil {
				return nil, fmt.Errorf("minio: creating bucket %s: %w", cfg.bucket, err)
			}
		}
	}

	return &MinioStore{cfg: cfg, client: client}, nil
}

func (s *MinioStore) PresignedPut(ctx context.Context, path string, expiry time.Duration) (*url.URL, error) {
	return s.client.PresignedPutObject(ctx, s.cfg.bucket, path, expiry)
}

func (s *MinioStore) PresignedGet(ctx context.Context, path string, expiry time.Duration) (*url.URL, error) {
	return s.client.PresignedGetObject(ctx, s.cfg.bucket, path, expiry, nil)
}

func (s *MinioStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, path, r, size, minio.PutObjectOptions{ContentType: contentType})
	return translate(err)
}

func (s *MinioStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing key surfaces here.
	if _, err := s.Stat(ctx, path); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.cfg.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	return obj, nil
}

func (s *MinioStore) Download(ctx context.Context, path, localPath string) error {
	return translate(s.client.FGetObject(ctx, s.cfg.bucket, path, localPath, minio.GetObjectOptions{}))
}

func (s *MinioStore) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.cfg.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translate(err)
	}
	return toObjectInfo(info), nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.cfg.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return objects, obj.Err
		}
		objects = append(objects, toObjectInfo(obj))
	}
	return objects, nil
}

func (s *MinioStore) Remove(ctx context.Context, path string) error {
	err := translate(s.client.RemoveObject(ctx, s.cfg.bucket, path, minio.RemoveObjectOptions{}))
	if err == ErrObjectNotFound {
		return nil
	}
	return err
}

func toObjectInfo(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Path:         info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrObjectNotFound
	}
	return err
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

// WithCreateBucket makes the constructor create the bucket when it does not exist.
func WithCreateBucket() MinioOpts {
	return func(c *minioConfig) {
		c.createBucket = true
	}
}
