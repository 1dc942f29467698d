package reconciler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
	"github.com/rezkam/ragctl/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCollectionScheduler struct {
	calls   []string
	failFor map[string]error
}

func (m *mockCollectionScheduler) ScheduleExpiredDocumentCleanup(_ context.Context, collectionID string) error {
	if err := m.failFor[collectionID]; err != nil {
		return err
	}
	m.calls = append(m.calls, collectionID)
	return nil
}

func TestGCReconcileOnce_SweepsActiveCollections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	active := store.SeedCollection(domain.Collection{Status: domain.CollectionStatusActive})
	store.SeedCollection(domain.Collection{Status: domain.CollectionStatusInactive})
	deleted := time.Now().UTC()
	store.SeedCollection(domain.Collection{Status: domain.CollectionStatusActive, GmtDeleted: &deleted})

	sched := &mockCollectionScheduler{}
	rec := reconciler.NewCollectionGCReconciler(store, sched, reconciler.LoopConfig{Interval: time.Minute})
	require.NoError(t, rec.ReconcileOnce(ctx))

	assert.Equal(t, []string{active.ID}, sched.calls)
}

func TestGCReconcileOnce_DispatchFailureDoesNotAbortSweep(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	colA := store.SeedCollection(domain.Collection{Status: domain.CollectionStatusActive})
	colB := store.SeedCollection(domain.Collection{Status: domain.CollectionStatusActive})

	sched := &mockCollectionScheduler{failFor: map[string]error{colA.ID: errors.New("queue full")}}
	rec := reconciler.NewCollectionGCReconciler(store, sched, reconciler.LoopConfig{Interval: time.Minute})
	require.NoError(t, rec.ReconcileOnce(ctx))

	assert.Equal(t, []string{colB.ID}, sched.calls)
}
