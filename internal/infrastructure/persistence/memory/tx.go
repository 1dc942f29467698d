package memory

import (
	"context"
	"time"

	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
)

// stateTx applies conditional updates to the working copy of the state.
// Predicates mirror the SQL WHERE clauses of the PostgreSQL store.
type stateTx struct {
	state *state
	now   func() time.Time
}

var _ reconciler.StateTx = (*stateTx)(nil)

func (tx *stateTx) ClaimIndex(_ context.Context, documentID string, indexType domain.IndexType, action reconciler.IndexAction) (*reconciler.ClaimedIndex, error) {
	idx, ok := tx.state.indexes[documentID][indexType]
	if !ok {
		return nil, nil
	}

	switch action {
	case reconciler.ActionCreate:
		if idx.Status != domain.IndexStatusPending || idx.ObservedVersion >= idx.Version || idx.Version != 1 {
			return nil, nil
		}
		idx.Status = domain.IndexStatusCreating
	case reconciler.ActionUpdate:
		if idx.Status != domain.IndexStatusPending || idx.ObservedVersion >= idx.Version || idx.Version <= 1 {
			return nil, nil
		}
		idx.Status = domain.IndexStatusCreating
	case reconciler.ActionDelete:
		if idx.Status != domain.IndexStatusDeleting {
			return nil, nil
		}
		idx.Status = domain.IndexStatusDeletionInProgress
	default:
		return nil, nil
	}

	now := tx.now()
	idx.GmtUpdated = now
	idx.GmtLastReconciled = now

	claimed := &reconciler.ClaimedIndex{
		DocumentID: documentID,
		IndexType:  indexType,
		Action:     action,
	}
	if action != reconciler.ActionDelete {
		claimed.TargetVersion = idx.Version
	}
	return claimed, nil
}

func (tx *stateTx) CompleteIndex(_ context.Context, documentID string, indexType domain.IndexType, targetVersion int64, indexData string) (bool, error) {
	idx, ok := tx.state.indexes[documentID][indexType]
	if !ok || idx.Status != domain.IndexStatusCreating || idx.Version != targetVersion {
		return false, nil
	}
	now := tx.now()
	idx.Status = domain.IndexStatusActive
	idx.ObservedVersion = targetVersion
	idx.IndexData = indexData
	idx.ErrorMessage = ""
	idx.GmtUpdated = now
	idx.GmtLastReconciled = now
	return true, nil
}

func (tx *stateTx) FailIndex(_ context.Context, documentID string, indexType domain.IndexType, errorMessage string) (bool, error) {
	idx, ok := tx.state.indexes[documentID][indexType]
	if !ok || !idx.Status.InFlight() {
		return false, nil
	}
	now := tx.now()
	idx.Status = domain.IndexStatusFailed
	idx.ErrorMessage = errorMessage
	idx.GmtUpdated = now
	idx.GmtLastReconciled = now
	return true, nil
}

func (tx *stateTx) DeleteIndex(_ context.Context, documentID string, indexType domain.IndexType) (bool, error) {
	idx, ok := tx.state.indexes[documentID][indexType]
	if !ok || idx.Status != domain.IndexStatusDeletionInProgress {
		return false, nil
	}
	delete(tx.state.indexes[documentID], indexType)
	return true, nil
}

func (tx *stateTx) GetDocument(_ context.Context, documentID string) (*domain.Document, error) {
	doc, ok := tx.state.documents[documentID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (tx *stateTx) ListDocumentIndexes(_ context.Context, documentID string) ([]domain.DocumentIndex, error) {
	var out []domain.DocumentIndex
	for _, idx := range tx.state.indexes[documentID] {
		out = append(out, *idx)
	}
	return out, nil
}

func (tx *stateTx) SetDocumentStatus(_ context.Context, documentID string, status domain.DocumentStatus) error {
	doc, ok := tx.state.documents[documentID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.GmtUpdated = tx.now()
	return nil
}

func (tx *stateTx) GetSummary(_ context.Context, summaryID string) (*domain.CollectionSummary, error) {
	sum, ok := tx.state.summaries[summaryID]
	if !ok {
		return nil, domain.ErrSummaryNotFound
	}
	cp := *sum
	return &cp, nil
}

func (tx *stateTx) ClaimSummary(_ context.Context, summaryID string, version int64) (bool, error) {
	sum, ok := tx.state.summaries[summaryID]
	if !ok || sum.Status == domain.SummaryStatusGenerating || sum.Version != version {
		return false, nil
	}
	now := tx.now()
	sum.Status = domain.SummaryStatusGenerating
	sum.GmtUpdated = now
	sum.GmtLastReconciled = now
	return true, nil
}

func (tx *stateTx) CompleteSummary(_ context.Context, summaryID string, targetVersion int64, content string) (bool, error) {
	sum, ok := tx.state.summaries[summaryID]
	if !ok || sum.Status != domain.SummaryStatusGenerating || sum.Version != targetVersion {
		return false, nil
	}
	sum.Status = domain.SummaryStatusComplete
	sum.Summary = content
	sum.ObservedVersion = targetVersion
	sum.ErrorMessage = ""
	sum.GmtUpdated = tx.now()
	return true, nil
}

func (tx *stateTx) FailSummary(_ context.Context, summaryID string, targetVersion int64, errorMessage string) (bool, error) {
	sum, ok := tx.state.summaries[summaryID]
	if !ok || sum.Status != domain.SummaryStatusGenerating || sum.Version != targetVersion {
		return false, nil
	}
	sum.Status = domain.SummaryStatusFailed
	sum.ErrorMessage = errorMessage
	sum.GmtUpdated = tx.now()
	return true, nil
}

func (tx *stateTx) GetCollection(_ context.Context, collectionID string) (*domain.Collection, error) {
	col, ok := tx.state.collections[collectionID]
	if !ok || col.GmtDeleted != nil {
		return nil, domain.ErrCollectionNotFound
	}
	cp := *col
	return &cp, nil
}

func (tx *stateTx) SetCollectionDescription(_ context.Context, collectionID string, description string, readUpdatedAt time.Time) (bool, error) {
	col, ok := tx.state.collections[collectionID]
	if !ok || col.GmtDeleted != nil || !col.GmtUpdated.Equal(readUpdatedAt) {
		return false, nil
	}
	col.Description = description
	col.GmtUpdated = tx.now()
	return true, nil
}
