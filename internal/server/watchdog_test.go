package server

import (
	"context"
	"testing"
	"time"
)

func TestRunSweepFailsStaleTransfers(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	stale := newTestTransfer(StatusProcessing)
	stale.UpdatedAt = time.Now().Add(-10 * time.Minute)
	fresh := newTestTransfer(StatusProcessing)

	for _, tr := range []*Transfer{stale, fresh} {
		if err := store.Create(ctx, tr); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	runSweep(ctx, WatchdogConfig{MaxAge: 5 * time.Minute, Store: store})

	got, _ := store.Get(ctx, stale.ID)
	if got.Status != StatusFailed {
		t.Fatalf("stale status = %s, want FAILED", got.Status)
	}
	if got.FailureReason != "processing timeout" {
		t.Fatalf("failureReason = %q, want %q", got.FailureReason, "processing timeout")
	}

	got, _ = store.Get(ctx, fresh.ID)
	if got.Status != StatusProcessing {
		t.Fatalf("fresh status = %s, want PROCESSING untouched", got.Status)
	}
}

func TestRunSweepLosesRaceGracefully(t *testing.T) {
	store := NewMemTransferStore()
	ctx := context.Background()

	// The row looks stale to the query but a worker completes it before
	// the sweep writes. UpdateStatus must reject the transition and the
	// sweep must leave the terminal status alone.
	tr := newTestTransfer(StatusProcessing)
	tr.UpdatedAt = time.Now().Add(-10 * time.Minute)
	if err := store.Create(ctx, tr); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	ids, err := store.StaleProcessing(ctx, time.Now().Add(-5*time.Minute), 100)
	if err != nil || len(ids) != 1 {
		t.Fatalf("StaleProcessing = (%v, %v)", ids, err)
	}

	if err := store.UpdateStatus(ctx, tr.ID, StatusCompleted, ""); err != nil {
		t.Fatalf("complete error: %v", err)
	}

	runSweep(ctx, WatchdogConfig{MaxAge: 5 * time.Minute, Store: store})

	got, _ := store.Get(ctx, tr.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED preserved", got.Status)
	}
}
