package storage

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// MinioConfig for S3 compatible upload storage
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ApplyDefaults fills unset fields with local development values
func (c *MinioConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:9000"
	}
	if c.AccessKey == "" {
		c.AccessKey = "minioadmin"
	}
	if c.SecretKey == "" {
		c.SecretKey = "minioadmin"
	}
	if c.Bucket == "" {
		c.Bucket = "diarizer-uploads"
	}
}

// MinioStore implements Store on a MinIO bucket
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and makes sure the bucket exists
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	cfg.ApplyDefaults()

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "create minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, apperrors.Wrap(err, "check bucket existence")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apperrors.Wrap(err, "create bucket")
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Save uploads the object. size may be -1 when unknown.
func (s *MinioStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return apperrors.Wrap(err, "upload to minio")
	}
	return nil
}

// Fetch downloads the object to localPath
func (s *MinioStore) Fetch(ctx context.Context, key, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return apperrors.NotFound("upload", key)
		}
		return apperrors.Wrap(err, "download from minio")
	}
	return nil
}

// Remove deletes the object
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Wrap(err, "delete from minio")
	}
	return nil
}
