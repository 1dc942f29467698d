package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rezkam/ragctl/internal/domain"
)

// IndexCallbacks processes terminal task outcomes for document indexes.
//
// Each callback is one conditional update committed in its own transaction.
// A callback whose guard matches zero rows is stale (the user bumped the
// version or another actor advanced the row while the task was running); it
// is dropped with a warning and the reconciler re-discovers the row on the
// next tick.
type IndexCallbacks struct {
	store   Store
	project StatusProjection
	metrics *reconcileMetrics
}

func NewIndexCallbacks(store Store, project StatusProjection) *IndexCallbacks {
	if project == nil {
		project = DefaultStatusProjection
	}
	return &IndexCallbacks{
		store:   store,
		project: project,
		metrics: newReconcileMetrics(),
	}
}

// OnIndexCreated handles successful creation or update of an index.
// The row must still be in CREATING at exactly targetVersion; a stale success
// quietly loses the race so the newer desired version can be picked up.
func (c *IndexCallbacks) OnIndexCreated(ctx context.Context, documentID string, indexType domain.IndexType, targetVersion int64, indexData string) error {
	return c.store.WithTx(ctx, func(tx StateTx) error {
		applied, err := tx.CompleteIndex(ctx, documentID, indexType, targetVersion, indexData)
		if err != nil {
			return fmt.Errorf("failed to complete index: %w", err)
		}
		if !applied {
			c.metrics.callbacksIgnored.Add(ctx, 1)
			slog.WarnContext(ctx, "index creation callback ignored, row not in expected state",
				"document_id", documentID,
				"index_type", indexType,
				"target_version", targetVersion)
			return nil
		}
		if err := refreshDocumentStatus(ctx, tx, documentID, c.project); err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}
		slog.InfoContext(ctx, "index creation completed",
			"document_id", documentID,
			"index_type", indexType,
			"target_version", targetVersion)
		return nil
	})
}

// OnIndexFailed handles a failed creation, update or deletion. The row moves
// to FAILED without advancing observed_version, so an explicit user version
// bump is what re-queues it.
func (c *IndexCallbacks) OnIndexFailed(ctx context.Context, documentID string, indexType domain.IndexType, errorMessage string) error {
	return c.store.WithTx(ctx, func(tx StateTx) error {
		applied, err := tx.FailIndex(ctx, documentID, indexType, errorMessage)
		if err != nil {
			return fmt.Errorf("failed to mark index failed: %w", err)
		}
		if !applied {
			c.metrics.callbacksIgnored.Add(ctx, 1)
			slog.WarnContext(ctx, "index failure callback ignored, row not in expected state",
				"document_id", documentID,
				"index_type", indexType)
			return nil
		}
		if err := refreshDocumentStatus(ctx, tx, documentID, c.project); err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}
		slog.ErrorContext(ctx, "index operation failed",
			"document_id", documentID,
			"index_type", indexType,
			"error_message", errorMessage)
		return nil
	})
}

// OnIndexDeleted handles successful index teardown by hard-deleting the row.
func (c *IndexCallbacks) OnIndexDeleted(ctx context.Context, documentID string, indexType domain.IndexType) error {
	return c.store.WithTx(ctx, func(tx StateTx) error {
		applied, err := tx.DeleteIndex(ctx, documentID, indexType)
		if err != nil {
			return fmt.Errorf("failed to delete index: %w", err)
		}
		if !applied {
			c.metrics.callbacksIgnored.Add(ctx, 1)
			slog.WarnContext(ctx, "index deletion callback ignored, row not in expected state",
				"document_id", documentID,
				"index_type", indexType)
			return nil
		}
		if err := refreshDocumentStatus(ctx, tx, documentID, c.project); err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}
		slog.InfoContext(ctx, "index deleted",
			"document_id", documentID,
			"index_type", indexType)
		return nil
	})
}
