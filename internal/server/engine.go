// engine.go - Transfer lifecycle engine.
//
// The engine owns every status transition: intake creates the record and
// streams bytes into the blob store, background workers run the
// processing pipeline, and all reads used by polling clients go through
// Status/Content so authorization is enforced in one place.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// uploadFailedReason matches what polling clients display when intake
	// breaks after the record became visible.
	uploadFailedReason = "upload failed"

	// processingTimeoutReason marks transfers whose background work
	// exceeded the configured deadline.
	processingTimeoutReason = "processing timeout"

	// processingRetries bounds retry attempts for transient storage errors
	// during the pipeline. Retries are invisible to clients except as
	// delayed status progression.
	processingRetries = 3
)

// EngineConfig configures the lifecycle engine.
type EngineConfig struct {
	// Workers is the number of background processing goroutines.
	Workers int
	// QueueSize is the capacity of the processing queue.
	QueueSize int
	// ProcessTimeout bounds a single processing run. Exceeding it fails
	// the transfer with reason "processing timeout".
	ProcessTimeout time.Duration
}

func (c EngineConfig) workers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

func (c EngineConfig) queueSize() int {
	if c.QueueSize <= 0 {
		return 128
	}
	return c.QueueSize
}

func (c EngineConfig) processTimeout() time.Duration {
	if c.ProcessTimeout <= 0 {
		return 2 * time.Minute
	}
	return c.ProcessTimeout
}

// Engine drives transfers from intake through a terminal status.
type Engine struct {
	store   TransferStore
	blobs   BlobStore
	users   UserDirectory
	breaker *CircuitBreaker
	cfg     EngineConfig

	jobs chan uuid.UUID
	wg   sync.WaitGroup
}

// NewEngine wires the engine to its stores. The breaker guards blob
// storage calls; pass nil to disable it.
func NewEngine(store TransferStore, blobs BlobStore, users UserDirectory, breaker *CircuitBreaker, cfg EngineConfig) *Engine {
	return &Engine{
		store:   store,
		blobs:   blobs,
		users:   users,
		breaker: breaker,
		cfg:     cfg,
		jobs:    make(chan uuid.UUID, cfg.queueSize()),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled; Wait blocks until they exit.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.cfg.workers(); i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-e.jobs:
					e.process(ctx, id)
				}
			}
		}()
	}
}

// Wait blocks until every worker has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// QueueDepth reports how many transfers are waiting for a worker.
func (e *Engine) QueueDepth() int {
	return len(e.jobs)
}

// BreakerStats exposes the blob storage breaker for health reporting.
// The second return is false when no breaker is configured.
func (e *Engine) BreakerStats() (CircuitBreakerStats, bool) {
	if e.breaker == nil {
		return CircuitBreakerStats{}, false
	}
	return e.breaker.GetStats(), true
}

// Initiate validates the receiver, creates the PENDING record, streams
// the file into the blob store, and hands the transfer to the background
// pipeline. The id is returned even when intake fails after the record
// became visible: the client polls and observes FAILED.
func (e *Engine) Initiate(ctx context.Context, sender, receiver, fileName string, body io.Reader) (uuid.UUID, error) {
	ok, err := e.users.Exists(ctx, receiver)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check receiver: %w", err)
	}
	if !ok {
		// Nothing is persisted; the transfer never becomes pollable.
		return uuid.Nil, ErrUnknownReceiver
	}

	t := &Transfer{
		ID:        uuid.New(),
		Sender:    sender,
		Receiver:  receiver,
		FileName:  SanitizeFilename(fileName),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.Create(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("create transfer: %w", err)
	}

	size, err := e.putBlob(ctx, t.ID, body)
	if err != nil {
		Error("intake_failed", map[string]any{"service": "engine", "transfer": t.ID.String()}, err)
		// A partial object must not satisfy the bytes-iff-intake invariant.
		_ = e.blobs.Remove(context.WithoutCancel(ctx), t.ID)
		if uerr := e.store.UpdateStatus(context.WithoutCancel(ctx), t.ID, StatusFailed, uploadFailedReason); uerr != nil {
			Error("fail_mark_failed", map[string]any{"service": "engine", "transfer": t.ID.String()}, uerr)
		}
		GetMetrics().RecordTransferFailed()
		return t.ID, nil
	}
	GetMetrics().RecordIntake(size)

	if err := e.store.UpdateStatus(ctx, t.ID, StatusProcessing, ""); err != nil {
		// The watchdog cannot help a row stuck in PENDING, so fail it here.
		_ = e.store.UpdateStatus(context.WithoutCancel(ctx), t.ID, StatusFailed, "could not start processing")
		GetMetrics().RecordTransferFailed()
		return t.ID, nil
	}

	// Fire-and-forget handoff to the worker pool; the HTTP response never
	// waits for processing. A full queue is left to the watchdog sweep.
	select {
	case e.jobs <- t.ID:
	default:
		Warn("queue_full", map[string]any{"service": "engine", "transfer": t.ID.String()})
	}

	return t.ID, nil
}

// Status returns the transfer when requester is its sender or receiver.
//
// Clients poll this; a 2s interval is the recommended cadence, the
// server enforces no minimum.
func (e *Engine) Status(ctx context.Context, id uuid.UUID, requester string) (*Transfer, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester != t.Sender && requester != t.Receiver {
		return nil, ErrForbidden
	}
	return t, nil
}

// List returns every transfer the requester participates in.
func (e *Engine) List(ctx context.Context, requester string) ([]*Transfer, error) {
	return e.store.ListForUser(ctx, requester)
}

// Content opens the stored bytes for download. Only the receiver may
// download, and only once the transfer is COMPLETED.
func (e *Engine) Content(ctx context.Context, id uuid.UUID, requester string) (io.ReadCloser, *Transfer, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if requester != t.Receiver {
		return nil, nil, ErrForbidden
	}
	if t.Status != StatusCompleted {
		return nil, nil, ErrNotReady
	}

	rc, err := e.blobs.Open(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("open content: %w", err)
	}
	return rc, t, nil
}

// process runs the pipeline for one transfer: checksum the stored bytes,
// cross-check the size, record the result, and move to a terminal
// status. Transient storage errors are retried a bounded number of
// times; the whole run is capped by ProcessTimeout.
func (e *Engine) process(ctx context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.processTimeout())
	defer cancel()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < processingRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff between attempts; cheap and bounded.
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		lastErr = e.runPipeline(ctx, id)
		if lastErr == nil {
			break
		}
		Error("pipeline_attempt_failed", map[string]any{"service": "engine", "transfer": id.String(), "attempt": attempt + 1}, lastErr)
	}

	if lastErr == nil {
		if err := e.store.UpdateStatus(context.WithoutCancel(ctx), id, StatusCompleted, ""); err != nil {
			// A watchdog may have failed the row on timeout first; the
			// terminal status stays as-is.
			Warn("complete_rejected", map[string]any{"service": "engine", "transfer": id.String(), "error": err.Error()})
			return
		}
		GetMetrics().RecordTransferCompleted(time.Since(start))
		Info("transfer_completed", map[string]any{"service": "engine", "transfer": id.String(), "ms": time.Since(start).Milliseconds()})
		return
	}

	if errors.Is(lastErr, context.Canceled) {
		// Shutdown mid-run: leave the row in PROCESSING for the watchdog
		// (or the next instance) rather than guessing a terminal status.
		Info("pipeline_interrupted", map[string]any{"service": "engine", "transfer": id.String()})
		return
	}

	reason := failureReason(lastErr)
	if err := e.store.UpdateStatus(context.WithoutCancel(ctx), id, StatusFailed, reason); err != nil {
		Warn("fail_rejected", map[string]any{"service": "engine", "transfer": id.String(), "error": err.Error()})
		return
	}
	GetMetrics().RecordTransferFailed()
	Info("transfer_failed", map[string]any{"service": "engine", "transfer": id.String(), "reason": reason})
}

// runPipeline performs one processing attempt.
func (e *Engine) runPipeline(ctx context.Context, id uuid.UUID) error {
	sum, hashed, err := sha256FromBlob(ctx, e.blobs, id)
	if err != nil {
		return err
	}

	stored, err := e.statBlob(ctx, id)
	if err != nil {
		return err
	}
	if stored != hashed {
		return fmt.Errorf("integrity check failed: stored %d bytes, hashed %d", stored, hashed)
	}

	return e.store.RecordIntegrity(ctx, id, sum, hashed)
}

func (e *Engine) putBlob(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error) {
	if e.breaker == nil {
		return e.blobs.Put(ctx, id, r)
	}
	var n int64
	err := e.breaker.Execute(func() error {
		var err error
		n, err = e.blobs.Put(ctx, id, r)
		return err
	})
	return n, err
}

func (e *Engine) statBlob(ctx context.Context, id uuid.UUID) (int64, error) {
	if e.breaker == nil {
		return e.blobs.Stat(ctx, id)
	}
	var n int64
	err := e.breaker.Execute(func() error {
		var err error
		n, err = e.blobs.Stat(ctx, id)
		return err
	})
	return n, err
}

// failureReason maps a pipeline error to the client-visible reason.
// Failed transfers always carry a non-empty reason.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return processingTimeoutReason
	case err == nil:
		return "processing failed"
	default:
		return "processing failed: " + err.Error()
	}
}
