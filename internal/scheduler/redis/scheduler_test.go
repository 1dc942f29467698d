package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestScheduler(t *testing.T) (*Scheduler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := New(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

// popEnvelope reads a task the way a builder worker would: from the tail of
// the queue.
func popEnvelope(t *testing.T, s *Scheduler, queue string, dest any) {
	t.Helper()
	payload, err := s.client.RPop(context.Background(), queue).Result()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(payload), dest))
}

func TestScheduleCreateIndex_EnqueuesEnvelope(t *testing.T) {
	s, _ := setupTestScheduler(t)
	ctx := context.Background()

	specs := []reconciler.IndexSpec{
		{Type: domain.IndexTypeVector, TargetVersion: 1},
		{Type: domain.IndexTypeFulltext, TargetVersion: 3},
	}
	require.NoError(t, s.ScheduleCreateIndex(ctx, "doc-1", specs))

	var envelope indexTaskEnvelope
	popEnvelope(t, s, "ragctl:tasks:index", &envelope)
	assert.NotEmpty(t, envelope.TaskID)
	assert.Equal(t, reconciler.ActionCreate, envelope.Action)
	assert.Equal(t, "doc-1", envelope.DocumentID)
	assert.Equal(t, specs, envelope.Specs)
	assert.Empty(t, envelope.IndexTypes)
	assert.False(t, envelope.EnqueuedAt.IsZero())
}

func TestScheduleDeleteIndex_CarriesTypesWithoutVersions(t *testing.T) {
	s, _ := setupTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.ScheduleDeleteIndex(ctx, "doc-2", []domain.IndexType{domain.IndexTypeGraph}))

	var envelope indexTaskEnvelope
	popEnvelope(t, s, "ragctl:tasks:index", &envelope)
	assert.Equal(t, reconciler.ActionDelete, envelope.Action)
	assert.Equal(t, []domain.IndexType{domain.IndexTypeGraph}, envelope.IndexTypes)
	assert.Empty(t, envelope.Specs)
}

func TestScheduleSummaryGeneration_EnqueuesOnSummaryQueue(t *testing.T) {
	s, _ := setupTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.ScheduleSummaryGeneration(ctx, "sum-1", "col-1", 7))

	var envelope summaryTaskEnvelope
	popEnvelope(t, s, "ragctl:tasks:summary", &envelope)
	assert.Equal(t, "sum-1", envelope.SummaryID)
	assert.Equal(t, "col-1", envelope.CollectionID)
	assert.Equal(t, int64(7), envelope.TargetVersion)
}

func TestScheduleExpiredDocumentCleanup_EnqueuesOnCollectionQueue(t *testing.T) {
	s, _ := setupTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.ScheduleExpiredDocumentCleanup(ctx, "col-9"))

	var envelope collectionTaskEnvelope
	popEnvelope(t, s, "ragctl:tasks:collection", &envelope)
	assert.Equal(t, "cleanup_expired_documents", envelope.Kind)
	assert.Equal(t, "col-9", envelope.CollectionID)
}

func TestQueuePrefixIsConfigurable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := New(Config{Addr: mr.Addr(), QueuePrefix: "custom"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ScheduleExpiredDocumentCleanup(context.Background(), "col-1"))

	var envelope collectionTaskEnvelope
	popEnvelope(t, s, "custom:collection", &envelope)
	assert.Equal(t, "col-1", envelope.CollectionID)
}
