package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/RubachokBoss/artwork-feedback/pkg/hash"
	"github.com/rs/zerolog"
)

var ErrAssetTooLarge = errors.New("asset exceeds size limit")

type Asset struct {
	Body        []byte
	ContentType string
	FileName    string
	// Checksum is the hex SHA-256 of Body.
	Checksum    string
}

type AssetFetcher interface {
	Fetch(ctx context.Context, assetURL string) (*Asset, error)
}

type assetFetcher struct {
	maxSize int64
	hasher  *hash.Hasher
	client  *http.Client
	logger  zerolog.Logger
}

func NewAssetFetcher(timeout time.Duration, maxSize int64, logger zerolog.Logger) AssetFetcher {
	return &assetFetcher{
		maxSize: maxSize,
		hasher:  hash.NewHasher(hash.SHA256),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (f *assetFetcher) Fetch(ctx context.Context, assetURL string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("asset host returned status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if f.maxSize > 0 {
		reader = io.LimitReader(resp.Body, f.maxSize+1)
	}

	var buf bytes.Buffer
	checksum, err := f.hasher.SumReader(io.TeeReader(reader, &buf))
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	if f.maxSize > 0 && int64(buf.Len()) > f.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrAssetTooLarge, f.maxSize)
	}

	asset := &Asset{
		Body:        buf.Bytes(),
		ContentType: resp.Header.Get("Content-Type"),
		FileName:    fileNameFromURL(assetURL),
		Checksum:    checksum,
	}

	f.logger.Debug().
		Str("url", assetURL).
		Int("size", len(asset.Body)).
		Str("content_type", asset.ContentType).
		Str("sha256", asset.Checksum).
		Msg("Asset fetched")

	return asset, nil
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "asset"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "asset"
	}
	return name
}
