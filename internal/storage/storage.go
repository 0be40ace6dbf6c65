// Package storage keeps uploaded audio on local disk, in S3, or both.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/config"
	"github.com/snarg/transcriptor/internal/validation"
)

// ErrInvalidKey rejects keys that would escape the store.
var ErrInvalidKey = errors.New("invalid storage key")

// Store abstracts upload storage backends.
type Store interface {
	// Save stores data under key. Keys look like "audio-<ms>-<name>" or
	// "chunks/<uploadId>-<index>".
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for a stored object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists in any backend.
	Exists(ctx context.Context, key string) bool

	// URL returns where a client can fetch the object: a presigned URL for
	// S3, or the API download path for local storage.
	URL(ctx context.Context, key string) (string, error)

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// Pruner is implemented by stores that can delete objects older than a cutoff.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (count int, bytes int64, err error)
}

// New creates a Store based on config. Returns an error if S3 is configured
// but unreachable.
func New(cfg config.S3Config, uploadDir string, log zerolog.Logger) (Store, error) {
	if !cfg.Enabled() {
		return NewLocalStore(uploadDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil
	}
	return NewTieredStore(s3store, NewLocalStore(uploadDir), log), nil
}

var uploadIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// UploadKey names a finished upload: "audio-<unix ms>-<sanitized name>".
func UploadKey(filename string, now time.Time) string {
	return fmt.Sprintf("audio-%d-%s", now.UnixMilli(), validation.SanitizeFilename(filename))
}

// ChunkKey names one chunk of a chunked upload.
func ChunkKey(uploadID string, index int) (string, error) {
	if !uploadIDPattern.MatchString(uploadID) {
		return "", fmt.Errorf("%w: upload id %q", ErrInvalidKey, uploadID)
	}
	if index < 0 {
		return "", fmt.Errorf("%w: chunk index %d", ErrInvalidKey, index)
	}
	return fmt.Sprintf("chunks/%s-%d", uploadID, index), nil
}
