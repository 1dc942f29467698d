// Package memory provides an in-memory implementation of the reconciler
// state store. Transactions run against a deep copy of the state and swap it
// in on commit, giving the same conditional-update and rollback semantics as
// the PostgreSQL store without a database. Used by the unit test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
)

type state struct {
	documents   map[string]*domain.Document
	indexes     map[string]map[domain.IndexType]*domain.DocumentIndex
	collections map[string]*domain.Collection
	summaries   map[string]*domain.CollectionSummary
}

func newState() *state {
	return &state{
		documents:   make(map[string]*domain.Document),
		indexes:     make(map[string]map[domain.IndexType]*domain.DocumentIndex),
		collections: make(map[string]*domain.Collection),
		summaries:   make(map[string]*domain.CollectionSummary),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, doc := range s.documents {
		d := *doc
		c.documents[id] = &d
	}
	for docID, byType := range s.indexes {
		m := make(map[domain.IndexType]*domain.DocumentIndex, len(byType))
		for t, idx := range byType {
			i := *idx
			m[t] = &i
		}
		c.indexes[docID] = m
	}
	for id, col := range s.collections {
		cc := *col
		if col.GmtDeleted != nil {
			ts := *col.GmtDeleted
			cc.GmtDeleted = &ts
		}
		c.collections[id] = &cc
	}
	for id, sum := range s.summaries {
		ss := *sum
		c.summaries[id] = &ss
	}
	return c
}

// Store is the in-memory state store.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// Option is a functional option for configuring Store.
type Option func(*Store)

// WithClock overrides the time source, letting tests control timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ reconciler.Store = (*Store)(nil)

// === Seeding (test setup) ===

// SeedCollection stores a collection, generating an ID if absent.
func (s *Store) SeedCollection(col domain.Collection) domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col.ID == "" {
		col.ID = uuid.New().String()
	}
	if col.Status == "" {
		col.Status = domain.CollectionStatusActive
	}
	now := s.now()
	if col.GmtCreated.IsZero() {
		col.GmtCreated = now
	}
	if col.GmtUpdated.IsZero() {
		col.GmtUpdated = now
	}
	s.state.collections[col.ID] = &col
	return col
}

// SeedDocument stores a document, generating an ID if absent.
func (s *Store) SeedDocument(doc domain.Document) domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = domain.DocumentStatusPending
	}
	now := s.now()
	if doc.GmtCreated.IsZero() {
		doc.GmtCreated = now
	}
	if doc.GmtUpdated.IsZero() {
		doc.GmtUpdated = now
	}
	s.state.documents[doc.ID] = &doc
	return doc
}

// SeedIndex stores an index row verbatim. Tests use this to start scenarios
// from states the writer-side intents cannot produce directly.
func (s *Store) SeedIndex(idx domain.DocumentIndex) domain.DocumentIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx.ID == "" {
		idx.ID = uuid.New().String()
	}
	byType, ok := s.state.indexes[idx.DocumentID]
	if !ok {
		byType = make(map[domain.IndexType]*domain.DocumentIndex)
		s.state.indexes[idx.DocumentID] = byType
	}
	byType[idx.IndexType] = &idx
	return idx
}

// SeedSummary stores a summary row verbatim.
func (s *Store) SeedSummary(sum domain.CollectionSummary) domain.CollectionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	s.state.summaries[sum.ID] = &sum
	return sum
}

// === Snapshot reads (test assertions) ===

// Index returns a copy of the index row, or nil if it does not exist.
func (s *Store) Index(documentID string, indexType domain.IndexType) *domain.DocumentIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.state.indexes[documentID][indexType]
	if !ok {
		return nil
	}
	cp := *idx
	return &cp
}

// Document returns a copy of the document, or nil if it does not exist.
func (s *Store) Document(documentID string) *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.state.documents[documentID]
	if !ok {
		return nil
	}
	cp := *doc
	return &cp
}

// Collection returns a copy of the collection, or nil if it does not exist.
func (s *Store) Collection(collectionID string) *domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.state.collections[collectionID]
	if !ok {
		return nil
	}
	cp := *col
	return &cp
}

// Summary returns a copy of the summary row, or nil if it does not exist.
func (s *Store) Summary(summaryID string) *domain.CollectionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.state.summaries[summaryID]
	if !ok {
		return nil
	}
	cp := *sum
	return &cp
}

// SummaryForCollection returns a copy of the collection's summary row, or nil.
func (s *Store) SummaryForCollection(collectionID string) *domain.CollectionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range s.state.summaries {
		if sum.CollectionID == collectionID {
			cp := *sum
			return &cp
		}
	}
	return nil
}

// TouchCollection bumps a collection's gmt_updated, simulating a concurrent
// user edit.
func (s *Store) TouchCollection(collectionID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.state.collections[collectionID]; ok {
		col.GmtUpdated = at
	}
}

// === reconciler.Store ===

func (s *Store) ListIndexesNeedingReconciliation(_ context.Context) ([]domain.DocumentIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DocumentIndex
	for _, byType := range s.state.indexes {
		for _, idx := range byType {
			if needsReconciliation(idx) {
				out = append(out, *idx)
			}
		}
	}
	return out, nil
}

func needsReconciliation(idx *domain.DocumentIndex) bool {
	if idx.Status == domain.IndexStatusDeleting {
		return true
	}
	return idx.Status == domain.IndexStatusPending && idx.ObservedVersion < idx.Version
}

func (s *Store) ListSummariesNeedingReconciliation(_ context.Context) ([]domain.CollectionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CollectionSummary
	for _, sum := range s.state.summaries {
		if sum.Status == domain.SummaryStatusPending && sum.ObservedVersion != sum.Version {
			out = append(out, *sum)
		}
	}
	return out, nil
}

func (s *Store) ListActiveCollections(_ context.Context) ([]domain.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Collection
	for _, col := range s.state.collections {
		if col.Status == domain.CollectionStatusActive && col.GmtDeleted == nil {
			out = append(out, *col)
		}
	}
	return out, nil
}

func (s *Store) RequestIndexes(_ context.Context, documentID string, types []domain.IndexType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	byType, ok := s.state.indexes[documentID]
	if !ok {
		byType = make(map[domain.IndexType]*domain.DocumentIndex)
		s.state.indexes[documentID] = byType
	}
	for _, t := range types {
		if idx, ok := byType[t]; ok {
			idx.Version++
			idx.Status = domain.IndexStatusPending
			idx.GmtUpdated = now
			continue
		}
		byType[t] = &domain.DocumentIndex{
			ID:              uuid.New().String(),
			DocumentID:      documentID,
			IndexType:       t,
			Status:          domain.IndexStatusPending,
			Version:         1,
			ObservedVersion: 0,
			GmtCreated:      now,
			GmtUpdated:      now,
		}
	}
	return nil
}

func (s *Store) RequestIndexDeletion(_ context.Context, documentID string, types []domain.IndexType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, t := range types {
		if idx, ok := s.state.indexes[documentID][t]; ok {
			idx.Status = domain.IndexStatusDeleting
			idx.GmtUpdated = now
		}
	}
	return nil
}

func (s *Store) RequestSummaryRegeneration(_ context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, sum := range s.state.summaries {
		if sum.CollectionID == collectionID {
			sum.Version++
			sum.Status = domain.SummaryStatusPending
			sum.GmtUpdated = now
			return nil
		}
	}
	id := uuid.New().String()
	s.state.summaries[id] = &domain.CollectionSummary{
		ID:              id,
		CollectionID:    collectionID,
		Status:          domain.SummaryStatusPending,
		Version:         1,
		ObservedVersion: 0,
		GmtCreated:      now,
		GmtUpdated:      now,
	}
	return nil
}

// WithTx runs fn against a deep copy of the state and swaps the copy in when
// fn returns nil. An error or panic discards the copy, leaving the committed
// state untouched.
func (s *Store) WithTx(_ context.Context, fn func(tx reconciler.StateTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.state.clone()
	tx := &stateTx{state: working, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = working
	return nil
}
