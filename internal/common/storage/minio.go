package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	UseSSL    bool   `json:"useSSL"`
	Bucket    string `json:"bucket"`
}

// MinIOStore implements AttachmentStore using MinIO S3-compatible APIs.
type MinIOStore struct {
	client        *minio.Client
	defaultBucket string
}

func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("minio accessKey is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio secretKey is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}
	return &MinIOStore{client: client, defaultBucket: cfg.Bucket}, nil
}

func (s *MinIOStore) Upload(ctx context.Context, ref AttachmentRef, data []byte) error {
	opts := minio.PutObjectOptions{}
	if ref.ContentType != "" {
		opts.ContentType = ref.ContentType
	}
	_, err := s.client.PutObject(ctx, s.bucket(ref), ref.Key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("minio put object failed: %w", err)
	}
	return nil
}

func (s *MinIOStore) Download(ctx context.Context, ref AttachmentRef) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket(ref), ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object failed: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("minio read object failed: %w", err)
	}
	return data, nil
}

func (s *MinIOStore) Stat(ctx context.Context, ref AttachmentRef) (AttachmentStat, error) {
	info, err := s.client.StatObject(ctx, s.bucket(ref), ref.Key, minio.StatObjectOptions{})
	if err != nil {
		return AttachmentStat{}, fmt.Errorf("minio stat object failed: %w", err)
	}
	return AttachmentStat{
		SizeBytes:    info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

func (s *MinIOStore) bucket(ref AttachmentRef) string {
	if ref.Bucket != "" {
		return ref.Bucket
	}
	return s.defaultBucket
}
