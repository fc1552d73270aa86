package server

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestTransfer(status Status) *Transfer {
	now := time.Now().UTC()
	return &Transfer{
		ID:        uuid.New(),
		Sender:    "alice",
		Receiver:  "bob",
		FileName:  "report.pdf",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemStoreCreateGet(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	tr := newTestTransfer(StatusPending)
	if err := store.Create(ctx, tr); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := store.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Sender != "alice" || got.Receiver != "bob" || got.Status != StatusPending {
		t.Fatalf("unexpected transfer: %+v", got)
	}

	if _, err := store.Get(ctx, uuid.New()); err != ErrNotFound {
		t.Fatalf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestMemStoreUpdateStatus(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	tr := newTestTransfer(StatusPending)
	if err := store.Create(ctx, tr); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := store.UpdateStatus(ctx, tr.ID, StatusProcessing, ""); err != nil {
		t.Fatalf("PENDING -> PROCESSING: %v", err)
	}
	if err := store.UpdateStatus(ctx, tr.ID, StatusCompleted, ""); err != nil {
		t.Fatalf("PROCESSING -> COMPLETED: %v", err)
	}
	if err := store.UpdateStatus(ctx, tr.ID, StatusFailed, "late"); err != ErrInvalidTransition {
		t.Fatalf("COMPLETED -> FAILED: got %v, want ErrInvalidTransition", err)
	}

	got, _ := store.Get(ctx, tr.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}

	if err := store.UpdateStatus(ctx, uuid.New(), StatusProcessing, ""); err != ErrNotFound {
		t.Fatalf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestMemStoreFailureReason(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	tr := newTestTransfer(StatusProcessing)
	if err := store.Create(ctx, tr); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := store.UpdateStatus(ctx, tr.ID, StatusFailed, "processing timeout"); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	got, _ := store.Get(ctx, tr.ID)
	if got.FailureReason != "processing timeout" {
		t.Fatalf("failureReason = %q, want %q", got.FailureReason, "processing timeout")
	}
}

// TestMemStoreConcurrentUpdates hammers one transfer with racing status
// updates and checks that exactly one full legal path wins: at most one
// transition to PROCESSING, and at most one to a terminal status.
func TestMemStoreConcurrentUpdates(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	tr := newTestTransfer(StatusPending)
	if err := store.Create(ctx, tr); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	attempts := []Status{StatusProcessing, StatusCompleted, StatusFailed}
	var mu sync.Mutex
	wins := map[Status]int{}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for j := 0; j < 50; j++ {
				next := attempts[rng.Intn(len(attempts))]
				if err := store.UpdateStatus(ctx, tr.ID, next, "race"); err == nil {
					mu.Lock()
					wins[next]++
					mu.Unlock()
				}
			}
		}(int64(i))
	}
	wg.Wait()

	if wins[StatusProcessing] > 1 {
		t.Fatalf("PROCESSING won %d times, want at most 1", wins[StatusProcessing])
	}
	if wins[StatusCompleted]+wins[StatusFailed] > 1 {
		t.Fatalf("terminal transitions won %d times, want at most 1", wins[StatusCompleted]+wins[StatusFailed])
	}

	got, _ := store.Get(ctx, tr.ID)
	if !validStatus(got.Status) {
		t.Fatalf("final status %q is not a lifecycle status", got.Status)
	}
}

func TestMemStoreListForUser(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	a := newTestTransfer(StatusPending)
	b := newTestTransfer(StatusPending)
	b.Sender, b.Receiver = "bob", "charlie"
	c := newTestTransfer(StatusPending)
	c.Sender, c.Receiver = "charlie", "alice"

	for _, tr := range []*Transfer{a, b, c} {
		if err := store.Create(ctx, tr); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	got, err := store.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListForUser error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("alice sees %d transfers, want 2", len(got))
	}
	for _, tr := range got {
		if tr.Sender != "alice" && tr.Receiver != "alice" {
			t.Fatalf("alice sees foreign transfer %+v", tr)
		}
	}
}

func TestMemStoreStaleProcessing(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	stale := newTestTransfer(StatusProcessing)
	stale.UpdatedAt = time.Now().Add(-10 * time.Minute)
	fresh := newTestTransfer(StatusProcessing)
	pending := newTestTransfer(StatusPending)
	pending.UpdatedAt = time.Now().Add(-10 * time.Minute)

	for _, tr := range []*Transfer{stale, fresh, pending} {
		if err := store.Create(ctx, tr); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	ids, err := store.StaleProcessing(ctx, time.Now().Add(-5*time.Minute), 100)
	if err != nil {
		t.Fatalf("StaleProcessing error: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("StaleProcessing = %v, want [%s]", ids, stale.ID)
	}
}

func TestMemBlobStoreRoundTrip(t *testing.T) {
	blobs := NewMemBlobStore()
	ctx := context.Background()
	id := uuid.New()

	payload := []byte("the quick brown fox")
	n, err := blobs.Put(ctx, id, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Put wrote %d bytes, want %d", n, len(payload))
	}

	size, err := blobs.Stat(ctx, id)
	if err != nil || size != int64(len(payload)) {
		t.Fatalf("Stat = (%d, %v), want (%d, nil)", size, err, len(payload))
	}

	rc, err := blobs.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != string(payload) {
		t.Fatalf("content mismatch: %q", got)
	}

	if err := blobs.Remove(ctx, id); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := blobs.Stat(ctx, id); err != ErrNotFound {
		t.Fatalf("Stat after Remove: got %v, want ErrNotFound", err)
	}
}
