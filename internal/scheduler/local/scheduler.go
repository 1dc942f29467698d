// Package local implements the task scheduler contract with an in-process
// worker pool. Builders run as goroutines and their outcomes feed straight
// into the controller callbacks, which makes it the backend of choice for
// development and tests: no broker, same convergence semantics.
package local

import (
	"context"
	"log/slog"

	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
	"golang.org/x/sync/errgroup"
)

// IndexBuilder produces and removes concrete indexes. Implementations live
// outside the controller; only the contract is fixed here.
type IndexBuilder interface {
	// BuildIndex materialises one index at the spec's target version and
	// returns the opaque index data recorded on success.
	BuildIndex(ctx context.Context, documentID string, spec reconciler.IndexSpec) (string, error)

	// RemoveIndex tears one index down.
	RemoveIndex(ctx context.Context, documentID string, indexType domain.IndexType) error
}

// SummaryBuilder generates a collection summary.
type SummaryBuilder interface {
	GenerateSummary(ctx context.Context, collectionID string) (string, error)
}

// CollectionCleaner removes expired documents from a collection.
type CollectionCleaner interface {
	CleanupExpiredDocuments(ctx context.Context, collectionID string) error
}

// IndexCallbacks is the slice of the controller callback surface the local
// workers report into.
type IndexCallbacks interface {
	OnIndexCreated(ctx context.Context, documentID string, indexType domain.IndexType, targetVersion int64, indexData string) error
	OnIndexFailed(ctx context.Context, documentID string, indexType domain.IndexType, errorMessage string) error
	OnIndexDeleted(ctx context.Context, documentID string, indexType domain.IndexType) error
}

// SummaryCallbacks is the summary counterpart of IndexCallbacks.
type SummaryCallbacks interface {
	OnSummaryGenerated(ctx context.Context, summaryID string, summaryContent string, targetVersion int64) error
	OnSummaryFailed(ctx context.Context, summaryID string, errorMessage string, targetVersion int64) error
}

// Config holds local scheduler configuration.
type Config struct {
	// Concurrency bounds the number of builder goroutines (default: 4).
	Concurrency int
}

// Scheduler runs builder tasks in-process. Schedule calls return immediately;
// the task executes on the pool with the scheduler's base context, so tasks
// survive the reconciler tick that spawned them.
type Scheduler struct {
	baseCtx          context.Context
	group            *errgroup.Group
	sem              chan struct{}
	builder          IndexBuilder
	summaryBuilder   SummaryBuilder
	cleaner          CollectionCleaner
	indexCallbacks   IndexCallbacks
	summaryCallbacks SummaryCallbacks
}

var (
	_ reconciler.TaskScheduler       = (*Scheduler)(nil)
	_ reconciler.SummaryScheduler    = (*Scheduler)(nil)
	_ reconciler.CollectionScheduler = (*Scheduler)(nil)
)

// New creates a local scheduler. baseCtx bounds the lifetime of all spawned
// tasks; cancelling it aborts in-flight builders.
func New(baseCtx context.Context, cfg Config, builder IndexBuilder, summaryBuilder SummaryBuilder, cleaner CollectionCleaner, indexCallbacks IndexCallbacks, summaryCallbacks SummaryCallbacks) *Scheduler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	group, ctx := errgroup.WithContext(baseCtx)
	return &Scheduler{
		baseCtx:          ctx,
		group:            group,
		sem:              make(chan struct{}, concurrency),
		builder:          builder,
		summaryBuilder:   summaryBuilder,
		cleaner:          cleaner,
		indexCallbacks:   indexCallbacks,
		summaryCallbacks: summaryCallbacks,
	}
}

// Wait blocks until all spawned tasks have finished. Called on shutdown.
func (s *Scheduler) Wait() error {
	return s.group.Wait()
}

// spawn runs task on the pool. Schedule calls must never block on pool
// capacity: the claim transaction that issued the dispatch is still open, and
// a running task may be waiting on that same transaction to commit. The
// semaphore is therefore acquired inside the goroutine, not at spawn time.
func (s *Scheduler) spawn(task func(ctx context.Context)) {
	s.group.Go(func() error {
		select {
		case s.sem <- struct{}{}:
		case <-s.baseCtx.Done():
			return nil
		}
		defer func() { <-s.sem }()
		task(s.baseCtx)
		return nil
	})
}

// reportCallback logs a callback delivery failure. The state store guards
// keep a lost delivery safe: the reconciler re-discovers the row.
func (s *Scheduler) reportCallback(ctx context.Context, err error) {
	if err != nil {
		slog.ErrorContext(ctx, "task callback failed", "error", err)
	}
}

func (s *Scheduler) ScheduleCreateIndex(_ context.Context, documentID string, specs []reconciler.IndexSpec) error {
	s.spawnBuilds(documentID, specs)
	return nil
}

func (s *Scheduler) ScheduleUpdateIndex(_ context.Context, documentID string, specs []reconciler.IndexSpec) error {
	s.spawnBuilds(documentID, specs)
	return nil
}

func (s *Scheduler) ScheduleDeleteIndex(_ context.Context, documentID string, types []domain.IndexType) error {
	for _, indexType := range types {
		s.spawn(func(ctx context.Context) {
			if err := s.builder.RemoveIndex(ctx, documentID, indexType); err != nil {
				s.reportCallback(ctx, s.indexCallbacks.OnIndexFailed(ctx, documentID, indexType, err.Error()))
				return
			}
			s.reportCallback(ctx, s.indexCallbacks.OnIndexDeleted(ctx, documentID, indexType))
		})
	}
	return nil
}

func (s *Scheduler) spawnBuilds(documentID string, specs []reconciler.IndexSpec) {
	for _, spec := range specs {
		s.spawn(func(ctx context.Context) {
			indexData, err := s.builder.BuildIndex(ctx, documentID, spec)
			if err != nil {
				s.reportCallback(ctx, s.indexCallbacks.OnIndexFailed(ctx, documentID, spec.Type, err.Error()))
				return
			}
			s.reportCallback(ctx, s.indexCallbacks.OnIndexCreated(ctx, documentID, spec.Type, spec.TargetVersion, indexData))
		})
	}
}

func (s *Scheduler) ScheduleSummaryGeneration(_ context.Context, summaryID, collectionID string, targetVersion int64) error {
	s.spawn(func(ctx context.Context) {
		content, err := s.summaryBuilder.GenerateSummary(ctx, collectionID)
		if err != nil {
			s.reportCallback(ctx, s.summaryCallbacks.OnSummaryFailed(ctx, summaryID, err.Error(), targetVersion))
			return
		}
		s.reportCallback(ctx, s.summaryCallbacks.OnSummaryGenerated(ctx, summaryID, content, targetVersion))
	})
	return nil
}

func (s *Scheduler) ScheduleExpiredDocumentCleanup(_ context.Context, collectionID string) error {
	s.spawn(func(ctx context.Context) {
		if err := s.cleaner.CleanupExpiredDocuments(ctx, collectionID); err != nil {
			slog.ErrorContext(ctx, "expired document cleanup failed",
				"collection_id", collectionID,
				"error", err)
		}
	})
	return nil
}
