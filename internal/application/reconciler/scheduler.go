package reconciler

import (
	"context"

	"github.com/rezkam/ragctl/internal/domain"
)

// IndexSpec carries the per-type payload of a create/update dispatch.
// TargetVersion is the desired version being materialised; the builder must
// hand it back unchanged in the completion callback.
type IndexSpec struct {
	Type          domain.IndexType `json:"type"`
	TargetVersion int64            `json:"target_version"`
}

// TaskScheduler accepts typed index work keyed by document. Invocation is
// best-effort fire-and-forget; implementations must eventually invoke exactly
// one of the IndexCallbacks per (document, type) per claim, in any order.
//
// Implementations are free to batch across types for a single document, fan
// out per type, or coalesce duplicate work.
type TaskScheduler interface {
	// ScheduleCreateIndex dispatches first-time index builds for a document.
	ScheduleCreateIndex(ctx context.Context, documentID string, specs []IndexSpec) error

	// ScheduleUpdateIndex dispatches builds of indexes whose desired version
	// is above 1, whether or not an earlier version was materialised. The
	// claim path is identical to create; only the builder entry point differs.
	ScheduleUpdateIndex(ctx context.Context, documentID string, specs []IndexSpec) error

	// ScheduleDeleteIndex dispatches index teardown. No version is carried:
	// deletion is terminal on identity.
	ScheduleDeleteIndex(ctx context.Context, documentID string, types []domain.IndexType) error
}

// SummaryScheduler dispatches collection summary generation tasks.
type SummaryScheduler interface {
	ScheduleSummaryGeneration(ctx context.Context, summaryID, collectionID string, targetVersion int64) error
}

// CollectionScheduler dispatches collection maintenance tasks. The work is
// idempotent on its target, so no claiming precedes the dispatch.
type CollectionScheduler interface {
	ScheduleExpiredDocumentCleanup(ctx context.Context, collectionID string) error
}
