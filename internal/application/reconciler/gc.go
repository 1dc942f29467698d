package reconciler

import (
	"context"
	"fmt"
	"log/slog"
)

// CollectionGCReconciler periodically sweeps active collections and enqueues
// expiry cleanup tasks. The cleanup is idempotent on its target, so the sweep
// dispatches without claiming.
type CollectionGCReconciler struct {
	store     Store
	scheduler CollectionScheduler
	cfg       LoopConfig
}

func NewCollectionGCReconciler(store Store, scheduler CollectionScheduler, cfg LoopConfig) *CollectionGCReconciler {
	return &CollectionGCReconciler{
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// Run starts the GC sweep loop and blocks until ctx is cancelled.
func (r *CollectionGCReconciler) Run(ctx context.Context) error {
	return runLoop(ctx, "collection-gc", r.cfg, r.ReconcileOnce)
}

// ReconcileOnce enqueues one cleanup task per active collection.
func (r *CollectionGCReconciler) ReconcileOnce(ctx context.Context) error {
	collections, err := r.store.ListActiveCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active collections: %w", err)
	}
	if len(collections) == 0 {
		return nil
	}

	var failed int
	for _, collection := range collections {
		if err := r.scheduler.ScheduleExpiredDocumentCleanup(ctx, collection.ID); err != nil {
			failed++
			slog.ErrorContext(ctx, "failed to schedule expired document cleanup",
				"collection_id", collection.ID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "collection gc sweep completed",
		"collections", len(collections),
		"failed", failed)
	return nil
}
