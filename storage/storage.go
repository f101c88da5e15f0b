package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"video-essay-pipeline/config"
)

// Publisher copies a finished artifact to object storage and returns a URL
// it can be fetched from.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// New returns the publisher for cfg.Backend, or nil when publishing is off.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "s3":
		p, err := NewS3(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "minio":
		p, err := NewMinio(cfg, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func objectKey(prefix, localPath string) string {
	return path.Join(prefix, filepath.Base(localPath))
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
