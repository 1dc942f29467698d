package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
)

// stateTx implements reconciler.StateTx on top of a pgx transaction.
type stateTx struct {
	tx pgx.Tx
}

var _ reconciler.StateTx = (*stateTx)(nil)

// claimPredicates maps each action to the SQL tail re-asserting the discovery
// predicate, and the in-flight status the claim transitions to.
var claimPredicates = map[reconciler.IndexAction]struct {
	condition string
	target    string
}{
	reconciler.ActionCreate: {
		condition: `status = 'PENDING' AND observed_version < version AND version = 1`,
		target:    "CREATING",
	},
	reconciler.ActionUpdate: {
		condition: `status = 'PENDING' AND observed_version < version AND version > 1`,
		target:    "CREATING",
	},
	reconciler.ActionDelete: {
		condition: `status = 'DELETING'`,
		target:    "DELETION_IN_PROGRESS",
	},
}

func (t *stateTx) ClaimIndex(ctx context.Context, documentID string, indexType domain.IndexType, action reconciler.IndexAction) (*reconciler.ClaimedIndex, error) {
	pred, ok := claimPredicates[action]
	if !ok {
		return nil, fmt.Errorf("unknown index action %q", action)
	}
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}

	// RETURNING captures the target version in the same statement that claims
	// the row, so the version cannot move between claim and dispatch.
	var version int64
	err = t.tx.QueryRow(ctx, `
		UPDATE document_indexes
		SET status = $3, gmt_updated = now(), gmt_last_reconciled = now()
		WHERE document_id = $1 AND index_type = $2 AND `+pred.condition+`
		RETURNING version`,
		docID, indexType, pred.target).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim index: %w", err)
	}

	claimed := &reconciler.ClaimedIndex{
		DocumentID: documentID,
		IndexType:  indexType,
		Action:     action,
	}
	if action != reconciler.ActionDelete {
		claimed.TargetVersion = version
	}
	return claimed, nil
}

func (t *stateTx) CompleteIndex(ctx context.Context, documentID string, indexType domain.IndexType, targetVersion int64, indexData string) (bool, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return false, fmt.Errorf("invalid document id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE document_indexes
		SET status = 'ACTIVE',
		    observed_version = $3,
		    index_data = $4,
		    error_message = '',
		    gmt_updated = now(),
		    gmt_last_reconciled = now()
		WHERE document_id = $1 AND index_type = $2
		  AND status = 'CREATING' AND version = $3`,
		docID, indexType, targetVersion, indexData)
	if err != nil {
		return false, fmt.Errorf("failed to complete index: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *stateTx) FailIndex(ctx context.Context, documentID string, indexType domain.IndexType, errorMessage string) (bool, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return false, fmt.Errorf("invalid document id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE document_indexes
		SET status = 'FAILED',
		    error_message = $3,
		    gmt_updated = now(),
		    gmt_last_reconciled = now()
		WHERE document_id = $1 AND index_type = $2
		  AND status IN ('CREATING', 'DELETION_IN_PROGRESS')`,
		docID, indexType, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to mark index failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *stateTx) DeleteIndex(ctx context.Context, documentID string, indexType domain.IndexType) (bool, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return false, fmt.Errorf("invalid document id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM document_indexes
		WHERE document_id = $1 AND index_type = $2 AND status = 'DELETION_IN_PROGRESS'`,
		docID, indexType)
	if err != nil {
		return false, fmt.Errorf("failed to delete index: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *stateTx) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}
	var doc domain.Document
	var id, collectionID uuid.UUID
	err = t.tx.QueryRow(ctx, `
		SELECT id, collection_id, name, status, gmt_created, gmt_updated
		FROM documents WHERE id = $1`, docID).
		Scan(&id, &collectionID, &doc.Name, &doc.Status, &doc.GmtCreated, &doc.GmtUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.ID = id.String()
	doc.CollectionID = collectionID.String()
	return &doc, nil
}

func (t *stateTx) ListDocumentIndexes(ctx context.Context, documentID string) ([]domain.DocumentIndex, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+indexColumns+`
		FROM document_indexes WHERE document_id = $1
		ORDER BY index_type`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query document indexes: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentIndex
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		out = append(out, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index rows: %w", err)
	}
	return out, nil
}

func (t *stateTx) SetDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE documents SET status = $2, gmt_updated = now() WHERE id = $1`,
		docID, status)
	if err != nil {
		return fmt.Errorf("failed to set document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (t *stateTx) GetSummary(ctx context.Context, summaryID string) (*domain.CollectionSummary, error) {
	sumID, err := uuid.Parse(summaryID)
	if err != nil {
		return nil, fmt.Errorf("invalid summary id: %w", err)
	}
	sum, err := scanSummary(t.tx.QueryRow(ctx, `
		SELECT id, collection_id, summary, status, version, observed_version,
		       error_message, gmt_created, gmt_updated, gmt_last_reconciled
		FROM collection_summaries WHERE id = $1`, sumID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &sum, nil
}

func (t *stateTx) ClaimSummary(ctx context.Context, summaryID string, version int64) (bool, error) {
	sumID, err := uuid.Parse(summaryID)
	if err != nil {
		return false, fmt.Errorf("invalid summary id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE collection_summaries
		SET status = 'GENERATING', gmt_updated = now(), gmt_last_reconciled = now()
		WHERE id = $1 AND status <> 'GENERATING' AND version = $2`,
		sumID, version)
	if err != nil {
		return false, fmt.Errorf("failed to claim summary: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *stateTx) CompleteSummary(ctx context.Context, summaryID string, targetVersion int64, content string) (bool, error) {
	sumID, err := uuid.Parse(summaryID)
	if err != nil {
		return false, fmt.Errorf("invalid summary id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE collection_summaries
		SET status = 'COMPLETE',
		    summary = $3,
		    observed_version = $2,
		    error_message = '',
		    gmt_updated = now()
		WHERE id = $1 AND status = 'GENERATING' AND version = $2`,
		sumID, targetVersion, content)
	if err != nil {
		return false, fmt.Errorf("failed to complete summary: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *stateTx) FailSummary(ctx context.Context, summaryID string, targetVersion int64, errorMessage string) (bool, error) {
	sumID, err := uuid.Parse(summaryID)
	if err != nil {
		return false, fmt.Errorf("invalid summary id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE collection_summaries
		SET status = 'FAILED', error_message = $3, gmt_updated = now()
		WHERE id = $1 AND status = 'GENERATING' AND version = $2`,
		sumID, targetVersion, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to mark summary failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *stateTx) GetCollection(ctx context.Context, collectionID string) (*domain.Collection, error) {
	colID, err := uuid.Parse(collectionID)
	if err != nil {
		return nil, fmt.Errorf("invalid collection id: %w", err)
	}
	col, err := scanCollection(t.tx.QueryRow(ctx, `
		SELECT id, title, description, status, config, gmt_created, gmt_updated, gmt_deleted
		FROM collections WHERE id = $1 AND gmt_deleted IS NULL`, colID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &col, nil
}

func (t *stateTx) SetCollectionDescription(ctx context.Context, collectionID string, description string, readUpdatedAt time.Time) (bool, error) {
	colID, err := uuid.Parse(collectionID)
	if err != nil {
		return false, fmt.Errorf("invalid collection id: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE collections
		SET description = $2, gmt_updated = now()
		WHERE id = $1 AND gmt_updated = $3 AND gmt_deleted IS NULL`,
		colID, description, readUpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to update collection description: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
