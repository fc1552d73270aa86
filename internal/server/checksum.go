// checksum.go - Streaming SHA-256 integrity pass over stored content.
//
// The processing pipeline reads the blob back out of storage and hashes
// it, so the digest reflects what was durably written, not what the
// client claimed to send. Re-running the pass is idempotent.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// sha256FromBlob streams the stored bytes for id and returns the hex
// digest and the number of bytes hashed. The caller bounds the duration
// through ctx.
func sha256FromBlob(ctx context.Context, blobs BlobStore, id uuid.UUID) (string, int64, error) {
	rc, err := blobs.Open(ctx, id)
	if err != nil {
		return "", 0, fmt.Errorf("open blob: %w", err)
	}
	defer func() { _ = rc.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, contextReader{ctx: ctx, r: rc})
	if err != nil {
		return "", 0, fmt.Errorf("hash blob: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// contextReader aborts a copy once its context is done, so a hash of a
// large object cannot outlive the processing deadline.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
