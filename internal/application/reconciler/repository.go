package reconciler

import (
	"context"
	"time"

	"github.com/rezkam/ragctl/internal/domain"
)

// IndexAction classifies the work a drifted index row needs.
type IndexAction string

const (
	ActionCreate IndexAction = "create"
	ActionUpdate IndexAction = "update"
	ActionDelete IndexAction = "delete"
)

// ActionFor derives the reconciliation action from a scanned index row.
// Create and update share the same claim path; they differ only in whether
// the row is at its first requested version (version == 1).
func ActionFor(idx domain.DocumentIndex) IndexAction {
	if idx.Status == domain.IndexStatusDeleting {
		return ActionDelete
	}
	if idx.Version == 1 {
		return ActionCreate
	}
	return ActionUpdate
}

// ClaimedIndex records a successful claim of an index row.
// TargetVersion is the desired version captured at claim time; it is zero for
// deletes, which are terminal on identity.
type ClaimedIndex struct {
	DocumentID    string
	IndexType     domain.IndexType
	Action        IndexAction
	TargetVersion int64
}

// Store defines the state-store operations the reconcilers and callbacks need.
//
// This interface is owned by the reconciler package (consumer), not by the
// persistence package (provider). Every mutation inside a transaction uses
// conjunctive predicates and reports whether a row was affected, so multiple
// controller replicas can share one store without extra coordination.
type Store interface {
	// === Scans (read-only, outside any claiming transaction) ===

	// ListIndexesNeedingReconciliation returns all index rows matching one of
	// the three reconciliation predicates: create candidates (PENDING,
	// observed < version, version == 1), update candidates (PENDING,
	// observed < version, version > 1), and delete candidates (DELETING).
	ListIndexesNeedingReconciliation(ctx context.Context) ([]domain.DocumentIndex, error)

	// ListSummariesNeedingReconciliation returns summary rows in PENDING
	// whose observed_version differs from version.
	ListSummariesNeedingReconciliation(ctx context.Context) ([]domain.CollectionSummary, error)

	// ListActiveCollections returns all collections in ACTIVE status.
	ListActiveCollections(ctx context.Context) ([]domain.Collection, error)

	// === Writer-side intents (user/operator mutations) ===

	// RequestIndexes ensures a row exists for each given type: missing rows
	// are created in PENDING with version 1, existing rows get their version
	// bumped and status reset to PENDING.
	RequestIndexes(ctx context.Context, documentID string, types []domain.IndexType) error

	// RequestIndexDeletion marks the given index rows as DELETING.
	RequestIndexDeletion(ctx context.Context, documentID string, types []domain.IndexType) error

	// RequestSummaryRegeneration bumps the collection's summary version and
	// resets its status to PENDING, creating the row if absent.
	RequestSummaryRegeneration(ctx context.Context, collectionID string) error

	// === Transactions ===

	// WithTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back when fn returns an error or panics.
	WithTx(ctx context.Context, fn func(tx StateTx) error) error
}

// StateTx is the transactional surface of the state store. All conditional
// operations re-assert their predicate at write time and report whether
// exactly one row was affected.
type StateTx interface {
	// ClaimIndex atomically transitions an idle row to its in-flight state:
	// PENDING -> CREATING for create/update, DELETING -> DELETION_IN_PROGRESS
	// for delete. The claim predicate re-asserts the discovery predicate, so a
	// row taken by another replica yields nil without error.
	ClaimIndex(ctx context.Context, documentID string, indexType domain.IndexType, action IndexAction) (*ClaimedIndex, error)

	// CompleteIndex transitions (CREATING, version == targetVersion) to ACTIVE,
	// advancing observed_version to targetVersion, storing indexData and
	// clearing error_message. Returns false when the row is no longer in the
	// expected state (stale callback).
	CompleteIndex(ctx context.Context, documentID string, indexType domain.IndexType, targetVersion int64, indexData string) (bool, error)

	// FailIndex transitions any in-flight row (CREATING or
	// DELETION_IN_PROGRESS) to FAILED with the given message.
	// observed_version is left untouched.
	FailIndex(ctx context.Context, documentID string, indexType domain.IndexType, errorMessage string) (bool, error)

	// DeleteIndex hard-deletes a row in DELETION_IN_PROGRESS.
	DeleteIndex(ctx context.Context, documentID string, indexType domain.IndexType) (bool, error)

	// GetDocument returns the document or domain.ErrDocumentNotFound.
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)

	// ListDocumentIndexes returns all index rows of a document.
	ListDocumentIndexes(ctx context.Context, documentID string) ([]domain.DocumentIndex, error)

	// SetDocumentStatus writes the derived overall document status.
	SetDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error

	// GetSummary returns the summary row or domain.ErrSummaryNotFound.
	GetSummary(ctx context.Context, summaryID string) (*domain.CollectionSummary, error)

	// ClaimSummary transitions a summary row to GENERATING, conditioned on the
	// row not already generating and its version still matching the version
	// captured at scan time.
	ClaimSummary(ctx context.Context, summaryID string, version int64) (bool, error)

	// CompleteSummary transitions (GENERATING, version == targetVersion) to
	// COMPLETE, storing the content and advancing observed_version.
	CompleteSummary(ctx context.Context, summaryID string, targetVersion int64, content string) (bool, error)

	// FailSummary transitions (GENERATING, version == targetVersion) to FAILED.
	FailSummary(ctx context.Context, summaryID string, targetVersion int64, errorMessage string) (bool, error)

	// GetCollection returns a live collection or domain.ErrCollectionNotFound.
	// Soft-deleted collections are treated as not found.
	GetCollection(ctx context.Context, collectionID string) (*domain.Collection, error)

	// SetCollectionDescription overwrites the collection description, guarded
	// by the gmt_updated timestamp captured when the collection was read in
	// the same transaction. Returns false when the collection was modified
	// concurrently or deleted.
	SetCollectionDescription(ctx context.Context, collectionID string, description string, readUpdatedAt time.Time) (bool, error)
}
