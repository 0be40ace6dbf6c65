package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// MaxChunks bounds the chunk count of a single upload.
const MaxChunks = 1000

// AssembleChunks concatenates chunks 0..total-1 of an upload into finalKey,
// then deletes the chunk objects. maxSize caps the assembled size; zero
// means unlimited. Returns the assembled size.
func AssembleChunks(ctx context.Context, s Store, uploadID string, total int, finalKey, contentType string, maxSize int64) (int64, error) {
	if total < 1 || total > MaxChunks {
		return 0, fmt.Errorf("total chunks must be between 1 and %d, got %d", MaxChunks, total)
	}

	var buf bytes.Buffer
	for i := 0; i < total; i++ {
		key, err := ChunkKey(uploadID, i)
		if err != nil {
			return 0, err
		}
		r, err := s.Open(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("chunk %d of %d missing: %w", i, total, err)
		}
		_, err = io.Copy(&buf, r)
		r.Close()
		if err != nil {
			return 0, fmt.Errorf("read chunk %d: %w", i, err)
		}
		if maxSize > 0 && int64(buf.Len()) > maxSize {
			return 0, fmt.Errorf("assembled upload exceeds %d bytes", maxSize)
		}
	}

	if err := s.Save(ctx, finalKey, buf.Bytes(), contentType); err != nil {
		return 0, fmt.Errorf("save assembled upload: %w", err)
	}
	for i := 0; i < total; i++ {
		// Leftovers are removed by the retention pruner.
		key, _ := ChunkKey(uploadID, i)
		s.Delete(ctx, key)
	}
	return int64(buf.Len()), nil
}
