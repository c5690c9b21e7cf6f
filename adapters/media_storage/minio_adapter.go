package media_storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/khoahotran/pulse-media/internal/application/service"
	"github.com/khoahotran/pulse-media/internal/config"
	"github.com/khoahotran/pulse-media/pkg/logger"
)

var tracer = otel.Tracer("media_storage")

type minioAdapter struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioAdapter stores thumbnails as objects, creating the bucket on
// first use. Returned URLs are rooted at minio.public_url when set.
func NewMinioAdapter(cfg config.Config, log logger.Logger) (service.ThumbnailStore, error) {
	client, err := minio.New(cfg.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Minio.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Minio.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("Created MinIO bucket", zap.String("bucket", cfg.Minio.Bucket))
	}

	publicURL := cfg.Minio.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.Minio.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Minio.Endpoint, cfg.Minio.Bucket)
	}

	return &minioAdapter{
		client:    client,
		bucket:    cfg.Minio.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

func (m *minioAdapter) Put(ctx context.Context, videoID string, data []byte) (string, error) {
	key := thumbName(videoID)
	ctx, span := tracer.Start(ctx, "minio.put_thumbnail",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to upload thumbnail: %w", err)
	}
	return m.publicURL + "/" + key, nil
}

func (m *minioAdapter) Delete(ctx context.Context, videoID string) error {
	key := thumbName(videoID)
	ctx, span := tracer.Start(ctx, "minio.delete_thumbnail",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete thumbnail: %w", err)
	}
	return nil
}
