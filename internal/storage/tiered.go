package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// TieredStore keeps uploads on local disk and mirrors them to S3. Disk is
// authoritative for writes; S3 serves as the download URL and as the
// fallback when the local copy is gone.
type TieredStore struct {
	s3    *S3Store
	local *LocalStore
	log   zerolog.Logger
}

func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:    s3,
		local: local,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

// Save fails only if the local write fails. A failed mirror write is logged.
func (s *TieredStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.local.Save(ctx, key, data, contentType); err != nil {
		return err
	}
	if err := s.s3.Save(ctx, key, data, contentType); err != nil {
		s.log.Warn().Err(err).Str("key", key).Int("bytes", len(data)).Msg("upload mirror failed")
	}
	return nil
}

// Open reads the local copy, refilling it from S3 when missing.
func (s *TieredStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.local.Open(ctx, key)
	if err == nil {
		return rc, nil
	}

	remote, err := s.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer remote.Close()
	data, err := io.ReadAll(remote)
	if err != nil {
		return nil, err
	}
	if err := s.local.Save(ctx, key, data, ""); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("local refill failed")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes both copies, reporting every failure.
func (s *TieredStore) Delete(ctx context.Context, key string) error {
	return errors.Join(s.local.Delete(ctx, key), s.s3.Delete(ctx, key))
}

func (s *TieredStore) Exists(ctx context.Context, key string) bool {
	return s.local.Exists(ctx, key) || s.s3.Exists(ctx, key)
}

// URL presigns the S3 copy. If presigning fails the local download path is
// returned instead.
func (s *TieredStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.s3.URL(ctx, key)
	if err == nil {
		return u, nil
	}
	s.log.Warn().Err(err).Str("key", key).Msg("presign failed, using local download")
	return s.local.URL(ctx, key)
}

func (s *TieredStore) Type() string { return "tiered" }

// PruneOlderThan prunes both tiers and reports the combined totals.
func (s *TieredStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, int64, error) {
	lc, lb, lerr := s.local.PruneOlderThan(ctx, cutoff)
	rc, rb, rerr := s.s3.PruneOlderThan(ctx, cutoff)
	return lc + rc, lb + rb, errors.Join(lerr, rerr)
}
