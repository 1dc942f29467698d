package reconciler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
	"github.com/rezkam/ragctl/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSummaryScheduler struct {
	calls []summaryDispatch
}

type summaryDispatch struct {
	summaryID     string
	collectionID  string
	targetVersion int64
}

func (m *mockSummaryScheduler) ScheduleSummaryGeneration(_ context.Context, summaryID, collectionID string, targetVersion int64) error {
	m.calls = append(m.calls, summaryDispatch{summaryID: summaryID, collectionID: collectionID, targetVersion: targetVersion})
	return nil
}

// tickingClock hands out strictly increasing timestamps so optimistic
// concurrency guards on gmt_updated can actually distinguish writes.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newSummaryFixture(t *testing.T, configBlob string) (*memory.Store, domain.Collection, domain.CollectionSummary) {
	t.Helper()
	store := memory.New(memory.WithClock(newTickingClock().Now))
	col := store.SeedCollection(domain.Collection{Config: configBlob})
	require.NoError(t, store.RequestSummaryRegeneration(context.Background(), col.ID))
	sum := store.SummaryForCollection(col.ID)
	require.NotNil(t, sum)
	return store, col, *sum
}

func summaryLoopConfig() reconciler.LoopConfig {
	return reconciler.LoopConfig{Interval: time.Minute}
}

func TestSummaryReconcileOnce_ClaimsAndDispatches(t *testing.T) {
	ctx := context.Background()
	store, col, sum := newSummaryFixture(t, "enable_summary: true")
	sched := &mockSummaryScheduler{}

	rec := reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig())
	require.NoError(t, rec.ReconcileOnce(ctx))

	require.Len(t, sched.calls, 1)
	assert.Equal(t, sum.ID, sched.calls[0].summaryID)
	assert.Equal(t, col.ID, sched.calls[0].collectionID)
	assert.Equal(t, int64(1), sched.calls[0].targetVersion)

	claimed := store.Summary(sum.ID)
	assert.Equal(t, domain.SummaryStatusGenerating, claimed.Status)

	// A second tick must not re-dispatch while the row is GENERATING.
	require.NoError(t, rec.ReconcileOnce(ctx))
	assert.Len(t, sched.calls, 1)
}

func TestOnSummaryGenerated_CompletesAndWritesDescription(t *testing.T) {
	ctx := context.Background()
	store, col, sum := newSummaryFixture(t, "enable_summary: true")
	sched := &mockSummaryScheduler{}
	require.NoError(t, reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig()).ReconcileOnce(ctx))

	callbacks := reconciler.NewSummaryCallbacks(store)
	require.NoError(t, callbacks.OnSummaryGenerated(ctx, sum.ID, "generated summary", 1))

	done := store.Summary(sum.ID)
	assert.Equal(t, domain.SummaryStatusComplete, done.Status)
	assert.Equal(t, "generated summary", done.Summary)
	assert.Equal(t, int64(1), done.ObservedVersion)
	assert.Empty(t, done.ErrorMessage)

	assert.Equal(t, "generated summary", store.Collection(col.ID).Description)
}

func TestOnSummaryGenerated_SummaryDisabledKeepsDescription(t *testing.T) {
	ctx := context.Background()
	store, col, sum := newSummaryFixture(t, "enable_summary: false")
	sched := &mockSummaryScheduler{}
	require.NoError(t, reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig()).ReconcileOnce(ctx))

	callbacks := reconciler.NewSummaryCallbacks(store)
	require.NoError(t, callbacks.OnSummaryGenerated(ctx, sum.ID, "generated summary", 1))

	assert.Equal(t, domain.SummaryStatusComplete, store.Summary(sum.ID).Status)
	assert.Empty(t, store.Collection(col.ID).Description)
}

func TestOnSummaryGenerated_BadConfigStillCompletesSummary(t *testing.T) {
	ctx := context.Background()
	store, col, sum := newSummaryFixture(t, "[unclosed")
	sched := &mockSummaryScheduler{}
	require.NoError(t, reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig()).ReconcileOnce(ctx))

	callbacks := reconciler.NewSummaryCallbacks(store)
	require.NoError(t, callbacks.OnSummaryGenerated(ctx, sum.ID, "generated summary", 1))

	// Parse failure means enable_summary=false: summary COMPLETE, description untouched.
	assert.Equal(t, domain.SummaryStatusComplete, store.Summary(sum.ID).Status)
	assert.Empty(t, store.Collection(col.ID).Description)
}

func TestOnSummaryGenerated_StaleVersionIgnored(t *testing.T) {
	ctx := context.Background()
	store, col, sum := newSummaryFixture(t, "enable_summary: true")
	sched := &mockSummaryScheduler{}
	require.NoError(t, reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig()).ReconcileOnce(ctx))

	// A writer requests regeneration while the v1 task runs.
	require.NoError(t, store.RequestSummaryRegeneration(ctx, col.ID))

	callbacks := reconciler.NewSummaryCallbacks(store)
	require.NoError(t, callbacks.OnSummaryGenerated(ctx, sum.ID, "stale content", 1))

	after := store.Summary(sum.ID)
	assert.NotEqual(t, domain.SummaryStatusComplete, after.Status)
	assert.Equal(t, int64(0), after.ObservedVersion)
	assert.Empty(t, store.Collection(col.ID).Description)
}

// raceStore simulates a collection edit committing between the callback's
// collection read and its guarded description write.
type raceStore struct {
	*memory.Store
	editDescription string
}

func (r *raceStore) WithTx(ctx context.Context, fn func(tx reconciler.StateTx) error) error {
	return r.Store.WithTx(ctx, func(tx reconciler.StateTx) error {
		return fn(&raceTx{StateTx: tx, edit: r.editDescription})
	})
}

type raceTx struct {
	reconciler.StateTx
	edit string
}

func (r *raceTx) GetCollection(ctx context.Context, collectionID string) (*domain.Collection, error) {
	col, err := r.StateTx.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	// Concurrent edit lands right after the read, bumping gmt_updated.
	if _, err := r.StateTx.SetCollectionDescription(ctx, collectionID, r.edit, col.GmtUpdated); err != nil {
		return nil, err
	}
	return col, nil
}

func TestOnSummaryGenerated_ConcurrentCollectionEditWins(t *testing.T) {
	ctx := context.Background()
	store, col, sum := newSummaryFixture(t, "enable_summary: true")
	sched := &mockSummaryScheduler{}
	require.NoError(t, reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig()).ReconcileOnce(ctx))

	racy := &raceStore{Store: store, editDescription: "user edited"}
	callbacks := reconciler.NewSummaryCallbacks(racy)
	require.NoError(t, callbacks.OnSummaryGenerated(ctx, sum.ID, "generated summary", 1))

	// The summary row still completes, but the user's edit is preserved.
	done := store.Summary(sum.ID)
	assert.Equal(t, domain.SummaryStatusComplete, done.Status)
	assert.Equal(t, int64(1), done.ObservedVersion)
	assert.Equal(t, "user edited", store.Collection(col.ID).Description)
}

func TestOnSummaryFailed_MarksFailedWithoutAdvancingVersion(t *testing.T) {
	ctx := context.Background()
	store, _, sum := newSummaryFixture(t, "enable_summary: true")
	sched := &mockSummaryScheduler{}
	require.NoError(t, reconciler.NewCollectionSummaryReconciler(store, sched, summaryLoopConfig()).ReconcileOnce(ctx))

	callbacks := reconciler.NewSummaryCallbacks(store)
	require.NoError(t, callbacks.OnSummaryFailed(ctx, sum.ID, "llm timeout", 1))

	after := store.Summary(sum.ID)
	assert.Equal(t, domain.SummaryStatusFailed, after.Status)
	assert.Equal(t, "llm timeout", after.ErrorMessage)
	assert.Equal(t, int64(0), after.ObservedVersion)
}
