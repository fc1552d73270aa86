// memstore.go - In-memory TransferStore and BlobStore.
//
// Mirrors the semantics of the Postgres and MinIO implementations,
// including state-machine enforcement and per-id serialization. Used by
// unit tests and by local runs without external dependencies.
package server

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memTransferStore struct {
	mu        sync.Mutex
	transfers map[uuid.UUID]*Transfer
}

// NewMemTransferStore returns an in-memory TransferStore.
func NewMemTransferStore() TransferStore {
	return &memTransferStore{transfers: make(map[uuid.UUID]*Transfer)}
}

func (s *memTransferStore) Create(ctx context.Context, t *Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.transfers[t.ID] = &cp
	return nil
}

func (s *memTransferStore) Get(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTransferStore) UpdateStatus(ctx context.Context, id uuid.UUID, next Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return ErrNotFound
	}
	if !canTransition(t.Status, next) {
		return ErrInvalidTransition
	}
	t.Status = next
	if next == StatusFailed {
		t.FailureReason = reason
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memTransferStore) RecordIntegrity(ctx context.Context, id uuid.UUID, checksum string, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != StatusProcessing {
		return nil
	}
	t.Checksum = checksum
	t.SizeBytes = sizeBytes
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memTransferStore) ListForUser(ctx context.Context, username string) ([]*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transfer
	for _, t := range s.transfers {
		if t.Sender == username || t.Receiver == username {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memTransferStore) StaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for id, t := range s.transfers {
		if t.Status == StatusProcessing && t.UpdatedAt.Before(cutoff) {
			out = append(out, id)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[uuid.UUID][]byte

	// failPut forces Put to fail; used to exercise the upload-failed path.
	failPut bool
}

// NewMemBlobStore returns an in-memory BlobStore.
func NewMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[uuid.UUID][]byte)}
}

func (b *memBlobStore) Put(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error) {
	if b.failPut {
		return 0, io.ErrUnexpectedEOF
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[id] = data
	return int64(len(data)), nil
}

func (b *memBlobStore) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobStore) Stat(ctx context.Context, id uuid.UUID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[id]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(data)), nil
}

func (b *memBlobStore) Remove(ctx context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, id)
	return nil
}
