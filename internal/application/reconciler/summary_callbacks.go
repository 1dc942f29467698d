package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rezkam/ragctl/internal/domain"
)

// SummaryCallbacks processes terminal outcomes of summary generation tasks.
type SummaryCallbacks struct {
	store   Store
	metrics *reconcileMetrics
}

func NewSummaryCallbacks(store Store) *SummaryCallbacks {
	return &SummaryCallbacks{
		store:   store,
		metrics: newReconcileMetrics(),
	}
}

// OnSummaryGenerated writes the completed summary and, when the collection
// has summaries enabled, mirrors the content into the collection description.
//
// The description write is guarded by the collection's gmt_updated captured
// in the same transaction: a concurrent collection edit wins, the summary row
// is still marked COMPLETE.
func (c *SummaryCallbacks) OnSummaryGenerated(ctx context.Context, summaryID string, summaryContent string, targetVersion int64) error {
	return c.store.WithTx(ctx, func(tx StateTx) error {
		summary, err := tx.GetSummary(ctx, summaryID)
		if errors.Is(err, domain.ErrSummaryNotFound) {
			c.warnIgnored(ctx, summaryID, targetVersion)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load summary: %w", err)
		}
		if summary.Status != domain.SummaryStatusGenerating || summary.Version != targetVersion {
			c.warnIgnored(ctx, summaryID, targetVersion)
			return nil
		}

		collection, err := tx.GetCollection(ctx, summary.CollectionID)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			slog.ErrorContext(ctx, "collection not found during summary completion",
				"summary_id", summaryID,
				"collection_id", summary.CollectionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load collection: %w", err)
		}

		summaryEnabled := false
		if cfg, err := domain.ParseCollectionConfig(collection.Config); err != nil {
			slog.ErrorContext(ctx, "failed to parse collection config",
				"collection_id", collection.ID,
				"error", err)
		} else {
			summaryEnabled = cfg.EnableSummary
		}
		collectionReadAt := collection.GmtUpdated

		applied, err := tx.CompleteSummary(ctx, summaryID, targetVersion, summaryContent)
		if err != nil {
			return fmt.Errorf("failed to complete summary: %w", err)
		}
		if !applied {
			c.warnIgnored(ctx, summaryID, targetVersion)
			return nil
		}

		if summaryEnabled && summaryContent != "" {
			updated, err := tx.SetCollectionDescription(ctx, collection.ID, summaryContent, collectionReadAt)
			if err != nil {
				return fmt.Errorf("failed to update collection description: %w", err)
			}
			if updated {
				slog.InfoContext(ctx, "updated collection description from generated summary",
					"collection_id", collection.ID)
			} else {
				slog.WarnContext(ctx, "skipped collection description update, collection modified concurrently",
					"collection_id", collection.ID)
			}
		}

		slog.InfoContext(ctx, "collection summary generation completed",
			"summary_id", summaryID,
			"target_version", targetVersion)
		return nil
	})
}

// OnSummaryFailed marks a summary generation attempt as FAILED without
// advancing observed_version.
func (c *SummaryCallbacks) OnSummaryFailed(ctx context.Context, summaryID string, errorMessage string, targetVersion int64) error {
	return c.store.WithTx(ctx, func(tx StateTx) error {
		applied, err := tx.FailSummary(ctx, summaryID, targetVersion, errorMessage)
		if err != nil {
			return fmt.Errorf("failed to mark summary failed: %w", err)
		}
		if !applied {
			c.warnIgnored(ctx, summaryID, targetVersion)
			return nil
		}
		slog.ErrorContext(ctx, "collection summary generation failed",
			"summary_id", summaryID,
			"target_version", targetVersion,
			"error_message", errorMessage)
		return nil
	})
}

func (c *SummaryCallbacks) warnIgnored(ctx context.Context, summaryID string, targetVersion int64) {
	c.metrics.callbacksIgnored.Add(ctx, 1)
	slog.WarnContext(ctx, "summary callback ignored, row not in expected state",
		"summary_id", summaryID,
		"target_version", targetVersion)
}
