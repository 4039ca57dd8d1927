package worker

import (
	"context"
	"log"
	"time"

	"kaspi-sync/internal/service"
)

// SyncWorker periodically triggers one sync tier. Failed runs are logged
// and retried on the next tick; the checkpoint inside the sync service
// guarantees a failed window is re-covered.
type SyncWorker struct {
	sync     *service.SyncService
	tier     string
	interval time.Duration
}

// NewSyncWorker creates a new sync worker for one tier
func NewSyncWorker(sync *service.SyncService, tier string, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		sync:     sync,
		tier:     tier,
		interval: interval,
	}
}

// Start runs the worker loop until the context is cancelled. The first run
// fires immediately, then on every tick.
func (w *SyncWorker) Start(ctx context.Context) {
	log.Printf("Starting %s sync worker (interval %s)...", w.tier, w.interval)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Stopping %s sync worker...", w.tier)
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SyncWorker) runOnce(ctx context.Context) {
	var err error
	switch w.tier {
	case service.TierNew:
		err = w.sync.SyncNew(ctx)
	case service.TierActive:
		err = w.sync.SyncActive(ctx)
	default:
		log.Printf("Unknown sync tier: %s", w.tier)
		return
	}
	if err != nil {
		log.Printf("%s sync failed: %v", w.tier, err)
	}
}

// RunArchiveBackfill runs the one-time archive import. Meant to be invoked
// once when an integration is connected, not on a schedule.
func RunArchiveBackfill(ctx context.Context, sync *service.SyncService, days int) {
	log.Println("Starting archive backfill...")
	if err := sync.SyncArchive(ctx, days); err != nil {
		log.Printf("Archive backfill failed: %v", err)
		return
	}
	log.Println("Archive backfill done")
}
