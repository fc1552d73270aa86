// watchdog.go - Background sweep for transfers stuck in PROCESSING.
//
// A crash between enqueue and completion would otherwise leave a row in
// PROCESSING forever; polling clients would never see a terminal status.
// The watchdog forces such rows into FAILED with reason
// "processing timeout" once they exceed the processing deadline.
package server

import (
	"context"
	"errors"
	"time"
)

// WatchdogConfig holds configuration for the stuck-transfer sweep.
type WatchdogConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// MaxAge is how long a transfer may sit in PROCESSING before it is
	// declared dead. Should exceed the engine's ProcessTimeout so that a
	// healthy pipeline always finishes (or fails) first.
	MaxAge time.Duration
	Store  TransferStore
}

// StartWatchdog runs the sweep loop until ctx is cancelled.
func StartWatchdog(ctx context.Context, cfg WatchdogConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}

	Info("starting", map[string]any{"service": "watchdog", "interval": cfg.Interval.String(), "max_age": cfg.MaxAge.String()})

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			Info("shutting_down", map[string]any{"service": "watchdog"})
			return
		case <-ticker.C:
			runSweep(ctx, cfg)
		}
	}
}

func runSweep(ctx context.Context, cfg WatchdogConfig) {
	cutoff := time.Now().Add(-cfg.MaxAge)

	ids, err := cfg.Store.StaleProcessing(ctx, cutoff, 100)
	if err != nil {
		Error("query_failed", map[string]any{"service": "watchdog"}, err)
		return
	}

	for _, id := range ids {
		err := cfg.Store.UpdateStatus(ctx, id, StatusFailed, processingTimeoutReason)
		if errors.Is(err, ErrInvalidTransition) {
			// A worker won the race and finished the row first.
			continue
		}
		if err != nil {
			Error("fail_mark_failed", map[string]any{"service": "watchdog", "transfer": id.String()}, err)
			continue
		}
		GetMetrics().RecordTransferFailed()
		Warn("transfer_timed_out", map[string]any{"service": "watchdog", "transfer": id.String()})
	}
}
