package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/config"
	"github.com/rezkam/ragctl/internal/domain"
)

// Store implements reconciler.Store using PostgreSQL. All conditional
// mutations are single UPDATE/DELETE statements with conjunctive predicates;
// rows-affected decides whether a claim or callback took effect, so any
// number of controller replicas can share the store.
type Store struct {
	pool *pgxpool.Pool
	dsn  string
}

var _ reconciler.Store = (*Store)(nil)

// NewStore opens a connection pool against the configured database and
// verifies it with a ping. Pool tuning is opt-in: unset fields keep pgxpool's
// own defaults rather than inventing new ones here.
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	// gmt_updated guards are compared across controller replicas, so every
	// session must agree on the timezone.
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleTime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &Store{pool: pool, dsn: cfg.DSN}, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool. This should be called when shutting down.
func (s *Store) Close() {
	s.pool.Close()
}

const indexColumns = `id, document_id, index_type, status, version, observed_version,
	index_data, error_message, gmt_created, gmt_updated, gmt_last_reconciled`

func scanIndex(row pgx.Row) (domain.DocumentIndex, error) {
	var idx domain.DocumentIndex
	var id, documentID uuid.UUID
	err := row.Scan(&id, &documentID, &idx.IndexType, &idx.Status, &idx.Version, &idx.ObservedVersion,
		&idx.IndexData, &idx.ErrorMessage, &idx.GmtCreated, &idx.GmtUpdated, &idx.GmtLastReconciled)
	if err != nil {
		return domain.DocumentIndex{}, err
	}
	idx.ID = id.String()
	idx.DocumentID = documentID.String()
	return idx, nil
}

func (s *Store) ListIndexesNeedingReconciliation(ctx context.Context) ([]domain.DocumentIndex, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+indexColumns+`
		FROM document_indexes
		WHERE (status = 'PENDING' AND observed_version < version)
		   OR status = 'DELETING'
		ORDER BY document_id, index_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes needing reconciliation: %w", err)
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

func (s *Store) ListSummariesNeedingReconciliation(ctx context.Context) ([]domain.CollectionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, collection_id, summary, status, version, observed_version,
		       error_message, gmt_created, gmt_updated, gmt_last_reconciled
		FROM collection_summaries
		WHERE status = 'PENDING' AND observed_version <> version
		ORDER BY collection_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries needing reconciliation: %w", err)
	}
	defer rows.Close()

	var out []domain.CollectionSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read summary rows: %w", err)
	}
	return out, nil
}

func scanSummary(row pgx.Row) (domain.CollectionSummary, error) {
	var sum domain.CollectionSummary
	var id, collectionID uuid.UUID
	err := row.Scan(&id, &collectionID, &sum.Summary, &sum.Status, &sum.Version, &sum.ObservedVersion,
		&sum.ErrorMessage, &sum.GmtCreated, &sum.GmtUpdated, &sum.GmtLastReconciled)
	if err != nil {
		return domain.CollectionSummary{}, err
	}
	sum.ID = id.String()
	sum.CollectionID = collectionID.String()
	return sum, nil
}

func (s *Store) ListActiveCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, status, config, gmt_created, gmt_updated, gmt_deleted
		FROM collections
		WHERE status = 'ACTIVE' AND gmt_deleted IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active collections: %w", err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read collection rows: %w", err)
	}
	return out, nil
}

func scanCollection(row pgx.Row) (domain.Collection, error) {
	var col domain.Collection
	var id uuid.UUID
	err := row.Scan(&id, &col.Title, &col.Description, &col.Status, &col.Config,
		&col.GmtCreated, &col.GmtUpdated, &col.GmtDeleted)
	if err != nil {
		return domain.Collection{}, err
	}
	col.ID = id.String()
	return col, nil
}

func (s *Store) RequestIndexes(ctx context.Context, documentID string, types []domain.IndexType) error {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, t := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO document_indexes (id, document_id, index_type, status, version, observed_version,
			                              gmt_created, gmt_updated, gmt_last_reconciled)
			VALUES ($1, $2, $3, 'PENDING', 1, 0, $4, $4, $4)
			ON CONFLICT ON CONSTRAINT uq_document_indexes_document_type DO UPDATE
			SET version = document_indexes.version + 1,
			    status = 'PENDING',
			    gmt_updated = $4`,
			uuid.New(), docID, t, now)
		if err != nil {
			return fmt.Errorf("failed to request %s index for document %s: %w", t, documentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) RequestIndexDeletion(ctx context.Context, documentID string, types []domain.IndexType) error {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE document_indexes
		SET status = 'DELETING', gmt_updated = now()
		WHERE document_id = $1 AND index_type = ANY($2)`,
		docID, indexTypeStrings(types))
	if err != nil {
		return fmt.Errorf("failed to request index deletion for document %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) RequestSummaryRegeneration(ctx context.Context, collectionID string) error {
	colID, err := uuid.Parse(collectionID)
	if err != nil {
		return fmt.Errorf("invalid collection id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO collection_summaries (id, collection_id, status, version, observed_version,
		                                  gmt_created, gmt_updated, gmt_last_reconciled)
		VALUES ($1, $2, 'PENDING', 1, 0, now(), now(), now())
		ON CONFLICT ON CONSTRAINT uq_collection_summaries_collection DO UPDATE
		SET version = collection_summaries.version + 1,
		    status = 'PENDING',
		    gmt_updated = now()`,
		uuid.New(), colID)
	if err != nil {
		return fmt.Errorf("failed to request summary regeneration for collection %s: %w", collectionID, err)
	}
	return nil
}

// WithTx runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise; the deferred rollback
// also covers panics inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx reconciler.StateTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&stateTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func indexTypeStrings(types []domain.IndexType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
