package service

import (
	"context"
	"time"

	"github.com/docvault/docvault/common/logger"
)

// PayloadRemover deletes durable bytes by blob id.
// *storage.DiskStore is the production implementation.
type PayloadRemover interface {
	Remove(blobID string) error
}

// Reaper physically removes soft-deleted blobs once their grace window
// has passed. It is the only component with physical-delete authority;
// everything else stops at the dtime marker.
//
// Every step of a cycle is individually idempotent, so an interrupted
// cycle simply re-runs, and blobs soft-deleted mid-cycle are picked up
// on the next one.
type Reaper struct {
	repo     BlobRows
	payloads PayloadRemover
	log      *logger.Logger

	interval time.Duration
	grace    time.Duration
	wake     chan struct{}
}

// NewReaper creates a reaper with the given cycle interval and grace window
func NewReaper(repo BlobRows, payloads PayloadRemover, interval, grace time.Duration, log *logger.Logger) *Reaper {
	return &Reaper{
		repo:     repo,
		payloads: payloads,
		log:      log,
		interval: interval,
		grace:    grace,
		wake:     make(chan struct{}, 1),
	}
}

// Start runs the reap loop on its own goroutine until ctx is canceled
func (r *Reaper) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Kick wakes the loop ahead of its timer. Non-blocking; a pending kick
// is enough.
func (r *Reaper) Kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reaper) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper started", "interval", r.interval, "grace", r.grace)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}

		if err := r.RunCycle(ctx); err != nil {
			r.log.Error("reap cycle failed", "error", err)
		}
	}
}

// RunCycle performs one reap pass: every blob soft-deleted before the
// grace cutoff loses its variant rows, its own row, and finally all the
// durable bytes. Metadata goes first so a crash leaves orphaned bytes
// (harmless, re-reaped) rather than rows pointing at nothing.
func (r *Reaper) RunCycle(ctx context.Context) error {
	cutoff := time.Now().Add(-r.grace)

	expired, err := r.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return err
	}

	if len(expired) == 0 {
		return nil
	}

	r.log.Info("reaping expired blobs", "count", len(expired))

	for _, blob := range expired {
		variants, err := r.repo.ListVariants(ctx, blob.ID)
		if err != nil {
			r.log.Error("failed to load variants", "blob_id", blob.ID, "error", err)
			continue
		}

		failed := false
		for _, v := range variants {
			if err := r.repo.DeleteRow(ctx, v.ID); err != nil {
				r.log.Error("failed to delete variant row", "blob_id", v.ID, "error", err)
				failed = true
			}
		}
		if failed {
			continue
		}

		if err := r.repo.DeleteRow(ctx, blob.ID); err != nil {
			r.log.Error("failed to delete blob row", "blob_id", blob.ID, "error", err)
			continue
		}

		for _, v := range variants {
			if err := r.payloads.Remove(v.ID); err != nil {
				r.log.Warn("failed to remove variant payload", "blob_id", v.ID, "error", err)
			}
		}
		if err := r.payloads.Remove(blob.ID); err != nil {
			r.log.Warn("failed to remove blob payload", "blob_id", blob.ID, "error", err)
		}

		r.log.Info("reaped blob", "blob_id", blob.ID, "variants", len(variants))
	}

	return nil
}
