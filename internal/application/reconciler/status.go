package reconciler

import (
	"context"
	"errors"

	"github.com/rezkam/ragctl/internal/domain"
)

// StatusProjection derives a document's visible status from its index rows.
// The precedence between in-flight and failed indexes is a deployment choice,
// so the projection is injected rather than hard-coded.
type StatusProjection func(indexes []domain.DocumentIndex) domain.DocumentStatus

// DefaultStatusProjection reports RUNNING while any index has outstanding
// work, FAILED when at least one index failed and none is in flight, and
// COMPLETE when every index is ACTIVE.
func DefaultStatusProjection(indexes []domain.DocumentIndex) domain.DocumentStatus {
	var failed bool
	for _, idx := range indexes {
		switch idx.Status {
		case domain.IndexStatusPending, domain.IndexStatusCreating,
			domain.IndexStatusDeleting, domain.IndexStatusDeletionInProgress:
			return domain.DocumentStatusRunning
		case domain.IndexStatusFailed:
			failed = true
		}
	}
	if failed {
		return domain.DocumentStatusFailed
	}
	return domain.DocumentStatusComplete
}

// refreshDocumentStatus re-derives and writes the overall document status
// inside the caller's transaction. Documents in DELETED, UPLOADED or EXPIRED
// keep their status untouched.
func refreshDocumentStatus(ctx context.Context, tx StateTx, documentID string, project StatusProjection) error {
	doc, err := tx.GetDocument(ctx, documentID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch doc.Status {
	case domain.DocumentStatusDeleted, domain.DocumentStatusUploaded, domain.DocumentStatusExpired:
		return nil
	}
	indexes, err := tx.ListDocumentIndexes(ctx, documentID)
	if err != nil {
		return err
	}
	return tx.SetDocumentStatus(ctx, documentID, project(indexes))
}
