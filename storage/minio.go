package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"video-essay-pipeline/config"
)

type MinioPublisher struct {
	client *minio.Client
	bucket string
	prefix string
	expiry time.Duration
	log    *slog.Logger
}

func NewMinio(cfg config.StorageConfig, logger *slog.Logger) (*MinioPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioPublisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		expiry: cfg.PresignExpiry,
		log:    logger.With("component", "storage", "backend", "minio"),
	}, nil
}

func (p *MinioPublisher) Publish(ctx context.Context, localPath string) (string, error) {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
		p.log.Info("bucket created", "bucket", p.bucket)
	}

	key := objectKey(p.prefix, localPath)
	_, err = p.client.FPutObject(ctx, p.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, p.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	p.log.Info("artifact published", "bucket", p.bucket, "key", key)
	return u.String(), nil
}
