package repository

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/RubachokBoss/artwork-feedback/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// AssetStorage keeps durable copies of submitted artwork.
type AssetStorage interface {
	// Put stores the object and returns its durable URL. A non-empty checksum
	// is kept as object metadata.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType, checksum string) (string, error)
	URL(key string) string
}

type MinIORepository struct {
	client        *minio.Client
	bucket        string
	region        string
	publicBaseURL string
	logger        zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

func NewMinIORepository(cfg config.StorageConfig, logger zerolog.Logger) (*MinIORepository, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	repo := &MinIORepository{
		client:        client,
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logger,
	}

	// Startup does not fail when MinIO is not ready yet; Put retries ensureBucket.
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := repo.ensureBucket(ctx); err != nil {
		logger.Error().Err(err).
			Str("endpoint", cfg.Endpoint).
			Str("bucket", cfg.Bucket).
			Msg("MinIO not ready during startup; will retry on demand")
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Bool("ssl", cfg.UseSSL).
		Msg("Connected to MinIO")

	return repo, nil
}

func (r *MinIORepository) ensureBucket(ctx context.Context) error {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()
	if r.bucketEnsured {
		return nil
	}

	backoff := 500 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("minio not ready: %w", err)
		}

		exists, err := r.client.BucketExists(ctx, r.bucket)
		if err != nil {
			sleepContext(ctx, backoff)
			continue
		}

		if !exists {
			if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{Region: r.region}); err != nil {
				sleepContext(ctx, backoff)
				continue
			}
			r.logger.Info().Str("bucket", r.bucket).Msg("Created new bucket")
		}

		r.bucketEnsured = true
		return nil
	}
}

func (r *MinIORepository) Put(ctx context.Context, key string, body io.Reader, size int64, contentType, checksum string) (string, error) {
	if err := r.ensureBucket(ctx); err != nil {
		return "", err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if checksum != "" {
		opts.UserMetadata = map[string]string{"sha256": checksum}
	}

	info, err := r.client.PutObject(ctx, r.bucket, key, body, size, opts)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	r.logger.Debug().
		Str("bucket", r.bucket).
		Str("key", key).
		Str("etag", info.ETag).
		Int64("size", info.Size).
		Msg("Asset stored in MinIO")

	return r.URL(key), nil
}

func (r *MinIORepository) URL(key string) string {
	base := r.publicBaseURL
	if base == "" {
		base = strings.TrimRight(r.client.EndpointURL().String(), "/")
	}
	return fmt.Sprintf("%s/%s/%s", base, r.bucket, key)
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
