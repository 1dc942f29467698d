package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/config"
	"github.com/rezkam/ragctl/internal/domain"
	"github.com/rezkam/ragctl/internal/infrastructure/persistence/postgres"
	localscheduler "github.com/rezkam/ragctl/internal/scheduler/local"
	redisscheduler "github.com/rezkam/ragctl/internal/scheduler/redis"
	"github.com/rezkam/ragctl/pkg/observability"
	"golang.org/x/sync/errgroup"
)

const serviceName = "ragctl-controller"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadControllerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownOTel, err := observability.Setup(ctx, serviceName, cfg.Observability.OTelEnabled)
	if err != nil {
		log.Fatalf("Failed to set up observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			slog.Error("observability shutdown failed", "error", err)
		}
	}()

	store, err := postgres.NewStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to state store: %v", err)
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	indexCallbacks := reconciler.NewIndexCallbacks(store, reconciler.DefaultStatusProjection)
	summaryCallbacks := reconciler.NewSummaryCallbacks(store)

	taskScheduler, summaryScheduler, collectionScheduler, closeScheduler, err := buildSchedulers(ctx, cfg, indexCallbacks, summaryCallbacks)
	if err != nil {
		log.Fatalf("Failed to set up task scheduler: %v", err)
	}
	defer closeScheduler()

	loopCfg := reconciler.LoopConfig{
		Interval:         cfg.Reconciler.IndexIntervalOrDefault(),
		MaxStartupJitter: cfg.Reconciler.MaxStartupJitterOrDefault(),
		RateLimitDelay:   cfg.Reconciler.RateLimitDelayOrDefault(),
	}
	summaryLoopCfg := loopCfg
	summaryLoopCfg.Interval = cfg.Reconciler.SummaryIntervalOrDefault()
	gcLoopCfg := loopCfg
	gcLoopCfg.Interval = cfg.Reconciler.GCIntervalOrDefault()

	indexReconciler := reconciler.NewDocumentIndexReconciler(store, taskScheduler, loopCfg)
	summaryReconciler := reconciler.NewCollectionSummaryReconciler(store, summaryScheduler, summaryLoopCfg)
	gcReconciler := reconciler.NewCollectionGCReconciler(store, collectionScheduler, gcLoopCfg)

	slog.InfoContext(ctx, "controller starting",
		"scheduler_backend", cfg.Scheduler.BackendOrDefault(),
		"enabled_index_types", cfg.Index.EnabledIndexTypes(),
		"index_interval", loopCfg.Interval,
		"summary_interval", summaryLoopCfg.Interval,
		"gc_interval", gcLoopCfg.Interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return indexReconciler.Run(gctx) })
	g.Go(func() error { return summaryReconciler.Run(gctx) })
	g.Go(func() error { return gcReconciler.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Controller stopped with error: %v", err)
	}
	slog.Info("controller stopped")
}

// buildSchedulers constructs the configured scheduler backend. The redis
// backend hands tasks to remote builder workers; the local backend runs stub
// builders in-process and exists for development and smoke testing.
func buildSchedulers(ctx context.Context, cfg *config.ControllerConfig, indexCallbacks *reconciler.IndexCallbacks, summaryCallbacks *reconciler.SummaryCallbacks) (reconciler.TaskScheduler, reconciler.SummaryScheduler, reconciler.CollectionScheduler, func(), error) {
	switch cfg.Scheduler.BackendOrDefault() {
	case config.SchedulerBackendRedis:
		s, err := redisscheduler.New(redisscheduler.Config{
			Addr:        cfg.Scheduler.RedisAddr,
			Password:    cfg.Scheduler.RedisPassword,
			DB:          cfg.Scheduler.RedisDB,
			QueuePrefix: cfg.Scheduler.RedisQueuePrefix,
		})
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return s, s, s, func() { _ = s.Close() }, nil

	case config.SchedulerBackendLocal:
		s := localscheduler.New(ctx, localscheduler.Config{Concurrency: cfg.Scheduler.LocalConcurrency},
			devIndexBuilder{}, devSummaryBuilder{}, devCollectionCleaner{}, indexCallbacks, summaryCallbacks)
		return s, s, s, func() { _ = s.Wait() }, nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown scheduler backend %q", cfg.Scheduler.Backend)
	}
}

// Development stand-ins for the external builders, used by the local backend.

type devIndexBuilder struct{}

func (devIndexBuilder) BuildIndex(_ context.Context, documentID string, spec reconciler.IndexSpec) (string, error) {
	return fmt.Sprintf("%s:%s:v%d", spec.Type, documentID, spec.TargetVersion), nil
}

func (devIndexBuilder) RemoveIndex(context.Context, string, domain.IndexType) error {
	return nil
}

type devSummaryBuilder struct{}

func (devSummaryBuilder) GenerateSummary(_ context.Context, collectionID string) (string, error) {
	return "summary for collection " + collectionID, nil
}

type devCollectionCleaner struct{}

func (devCollectionCleaner) CleanupExpiredDocuments(_ context.Context, collectionID string) error {
	slog.Debug("cleanup of expired documents requested", "collection_id", collectionID)
	return nil
}
