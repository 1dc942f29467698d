package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rezkam/ragctl/internal/domain"
)

// DocumentIndexReconciler drives every (document, index type) pair toward its
// desired version: scan the state table for drift, group by document,
// atomically claim rows and dispatch typed tasks to the scheduler.
//
// Level-triggered like a Kubernetes controller: no retry or backoff inside a
// tick, the next tick re-discovers anything still drifted. Multiple replicas
// may run; the conditional claims in the store are the only coordination.
type DocumentIndexReconciler struct {
	store     Store
	scheduler TaskScheduler
	cfg       LoopConfig
	metrics   *reconcileMetrics
}

func NewDocumentIndexReconciler(store Store, scheduler TaskScheduler, cfg LoopConfig) *DocumentIndexReconciler {
	return &DocumentIndexReconciler{
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
		metrics:   newReconcileMetrics(),
	}
}

// Run starts the reconciliation loop and blocks until ctx is cancelled.
func (r *DocumentIndexReconciler) Run(ctx context.Context) error {
	return runLoop(ctx, "document-index", r.cfg, r.ReconcileOnce)
}

// ReconcileOnce performs a single tick: one scan, then one isolated
// transaction per drifted document. A failing document never blocks the rest.
func (r *DocumentIndexReconciler) ReconcileOnce(ctx context.Context) error {
	start := time.Now().UTC()

	indexes, err := r.store.ListIndexesNeedingReconciliation(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan indexes needing reconciliation: %w", err)
	}
	if len(indexes) == 0 {
		slog.DebugContext(ctx, "reconciliation: no indexes need processing")
		return nil
	}

	byDocument := groupByDocument(indexes)
	slog.InfoContext(ctx, "reconciliation started",
		"documents_to_process", len(byDocument),
		"indexes_to_process", len(indexes))

	var successful, failed int
	for i, documentID := range sortedDocumentIDs(byDocument) {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "reconciliation interrupted",
				"reason", ctx.Err(),
				"processed", successful,
				"remaining", len(byDocument)-successful-failed)
			return nil
		default:
		}

		if r.cfg.RateLimitDelay > 0 && i > 0 {
			time.Sleep(r.cfg.RateLimitDelay)
		}

		if err := r.reconcileDocument(ctx, documentID, byDocument[documentID]); err != nil {
			failed++
			slog.ErrorContext(ctx, "failed to reconcile document",
				"document_id", documentID,
				"error", err)
			continue
		}
		successful++
	}

	r.metrics.documentsReconciled.Add(ctx, int64(successful))
	r.metrics.documentsFailed.Add(ctx, int64(failed))

	slog.InfoContext(ctx, "reconciliation completed",
		"successful", successful,
		"failed", failed,
		"duration", time.Since(start))
	return nil
}

// reconcileDocument claims and dispatches all drifted indexes of one document
// inside its own transaction. Rows that lost the claim race are dropped; the
// transaction commits only after every dispatch call has been issued, so a
// dispatch failure rolls the claims back and leaves the rows discoverable.
func (r *DocumentIndexReconciler) reconcileDocument(ctx context.Context, documentID string, rows []domain.DocumentIndex) error {
	return r.store.WithTx(ctx, func(tx StateTx) error {
		var claimed []ClaimedIndex
		for _, row := range rows {
			ci, err := tx.ClaimIndex(ctx, documentID, row.IndexType, ActionFor(row))
			if err != nil {
				return fmt.Errorf("failed to claim index %s/%s: %w", documentID, row.IndexType, err)
			}
			if ci == nil {
				// Already in flight or raced to another replica.
				slog.DebugContext(ctx, "could not claim index",
					"document_id", documentID,
					"index_type", row.IndexType)
				continue
			}
			claimed = append(claimed, *ci)
		}

		if len(claimed) == 0 {
			slog.DebugContext(ctx, "skipping document, indexes already being processed",
				"document_id", documentID)
			return nil
		}

		return r.dispatchClaimed(ctx, documentID, claimed)
	})
}

// dispatchClaimed batches the claimed rows by action and issues at most one
// scheduler call per action for the document.
func (r *DocumentIndexReconciler) dispatchClaimed(ctx context.Context, documentID string, claimed []ClaimedIndex) error {
	var creates, updates []IndexSpec
	var deletes []domain.IndexType
	for _, ci := range claimed {
		switch ci.Action {
		case ActionCreate:
			creates = append(creates, IndexSpec{Type: ci.IndexType, TargetVersion: ci.TargetVersion})
		case ActionUpdate:
			updates = append(updates, IndexSpec{Type: ci.IndexType, TargetVersion: ci.TargetVersion})
		case ActionDelete:
			deletes = append(deletes, ci.IndexType)
		}
	}

	if len(creates) > 0 {
		if err := r.scheduler.ScheduleCreateIndex(ctx, documentID, creates); err != nil {
			return fmt.Errorf("failed to schedule index creation: %w", err)
		}
		r.metrics.tasksScheduled.Add(ctx, int64(len(creates)))
		slog.InfoContext(ctx, "scheduled create task",
			"document_id", documentID,
			"index_types", specTypes(creates))
	}
	if len(updates) > 0 {
		if err := r.scheduler.ScheduleUpdateIndex(ctx, documentID, updates); err != nil {
			return fmt.Errorf("failed to schedule index update: %w", err)
		}
		r.metrics.tasksScheduled.Add(ctx, int64(len(updates)))
		slog.InfoContext(ctx, "scheduled update task",
			"document_id", documentID,
			"index_types", specTypes(updates))
	}
	if len(deletes) > 0 {
		if err := r.scheduler.ScheduleDeleteIndex(ctx, documentID, deletes); err != nil {
			return fmt.Errorf("failed to schedule index deletion: %w", err)
		}
		r.metrics.tasksScheduled.Add(ctx, int64(len(deletes)))
		slog.InfoContext(ctx, "scheduled delete task",
			"document_id", documentID,
			"index_types", deletes)
	}
	return nil
}

func groupByDocument(indexes []domain.DocumentIndex) map[string][]domain.DocumentIndex {
	byDocument := make(map[string][]domain.DocumentIndex)
	for _, idx := range indexes {
		byDocument[idx.DocumentID] = append(byDocument[idx.DocumentID], idx)
	}
	return byDocument
}

// sortedDocumentIDs keeps per-tick processing order deterministic.
func sortedDocumentIDs(byDocument map[string][]domain.DocumentIndex) []string {
	ids := make([]string, 0, len(byDocument))
	for id := range byDocument {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func specTypes(specs []IndexSpec) []domain.IndexType {
	types := make([]domain.IndexType, len(specs))
	for i, s := range specs {
		types[i] = s.Type
	}
	return types
}
