package reconciler

import (
	"context"
	"fmt"
	"log/slog"
)

// CollectionSummaryReconciler applies the reconcile pattern to the single
// per-collection summary artifact: one row per collection, claimed with the
// version captured at scan time.
type CollectionSummaryReconciler struct {
	store     Store
	scheduler SummaryScheduler
	cfg       LoopConfig
}

func NewCollectionSummaryReconciler(store Store, scheduler SummaryScheduler, cfg LoopConfig) *CollectionSummaryReconciler {
	return &CollectionSummaryReconciler{
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// Run starts the summary reconciliation loop and blocks until ctx is cancelled.
func (r *CollectionSummaryReconciler) Run(ctx context.Context) error {
	return runLoop(ctx, "collection-summary", r.cfg, r.ReconcileOnce)
}

// ReconcileOnce scans for pending summaries with drifted versions and claims
// each in its own transaction. Failure of one summary never blocks the rest.
func (r *CollectionSummaryReconciler) ReconcileOnce(ctx context.Context) error {
	summaries, err := r.store.ListSummariesNeedingReconciliation(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan summaries needing reconciliation: %w", err)
	}
	if len(summaries) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "summary reconciliation started", "summaries_to_process", len(summaries))

	var successful, failed int
	for _, summary := range summaries {
		err := r.store.WithTx(ctx, func(tx StateTx) error {
			claimed, err := tx.ClaimSummary(ctx, summary.ID, summary.Version)
			if err != nil {
				return fmt.Errorf("failed to claim summary: %w", err)
			}
			if !claimed {
				slog.DebugContext(ctx, "skipping summary, could not be claimed",
					"summary_id", summary.ID,
					"version", summary.Version)
				return nil
			}
			if err := r.scheduler.ScheduleSummaryGeneration(ctx, summary.ID, summary.CollectionID, summary.Version); err != nil {
				return fmt.Errorf("failed to schedule summary generation: %w", err)
			}
			slog.InfoContext(ctx, "scheduled summary generation",
				"summary_id", summary.ID,
				"collection_id", summary.CollectionID,
				"target_version", summary.Version)
			return nil
		})
		if err != nil {
			failed++
			slog.ErrorContext(ctx, "failed to reconcile collection summary",
				"summary_id", summary.ID,
				"error", err)
			continue
		}
		successful++
	}

	slog.InfoContext(ctx, "summary reconciliation completed",
		"successful", successful,
		"failed", failed)
	return nil
}
