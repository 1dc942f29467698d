// Package redis implements the task scheduler contract on top of Redis
// lists. Each task kind gets its own queue; payloads are JSON envelopes that
// remote builder workers pop and execute. This package only enqueues: it
// receives no task outcomes, and the controller binary serves no endpoint
// through which remote workers reach IndexCallbacks or SummaryCallbacks.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rezkam/ragctl/internal/application/reconciler"
	"github.com/rezkam/ragctl/internal/domain"
)

// Config holds Redis scheduler configuration.
type Config struct {
	Addr        string
	Password    string
	DB          int
	QueuePrefix string        // default: "ragctl:tasks"
	MaxRetries  uint64        // dispatch retry attempts on transient errors (default: 3)
	DialTimeout time.Duration // connection check timeout (default: 5s)
}

// Scheduler dispatches task envelopes onto Redis queues. Dispatch is
// best-effort with bounded exponential backoff; a dispatch error propagates
// to the reconciler, which rolls the claim back and retries next tick.
type Scheduler struct {
	client     *redis.Client
	prefix     string
	maxRetries uint64
}

var (
	_ reconciler.TaskScheduler       = (*Scheduler)(nil)
	_ reconciler.SummaryScheduler    = (*Scheduler)(nil)
	_ reconciler.CollectionScheduler = (*Scheduler)(nil)
)

// New creates a Redis-backed scheduler and verifies the connection.
func New(cfg Config) (*Scheduler, error) {
	if cfg.QueuePrefix == "" {
		cfg.QueuePrefix = "ragctl:tasks"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Scheduler{
		client:     client,
		prefix:     cfg.QueuePrefix,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Close releases the underlying Redis connection.
func (s *Scheduler) Close() error {
	return s.client.Close()
}

// indexTaskEnvelope is the wire format of index tasks.
type indexTaskEnvelope struct {
	TaskID     string                 `json:"task_id"`
	Action     reconciler.IndexAction `json:"action"`
	DocumentID string                 `json:"document_id"`
	Specs      []reconciler.IndexSpec `json:"specs,omitempty"`
	IndexTypes []domain.IndexType     `json:"index_types,omitempty"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// summaryTaskEnvelope is the wire format of summary generation tasks.
type summaryTaskEnvelope struct {
	TaskID        string    `json:"task_id"`
	SummaryID     string    `json:"summary_id"`
	CollectionID  string    `json:"collection_id"`
	TargetVersion int64     `json:"target_version"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// collectionTaskEnvelope is the wire format of collection maintenance tasks.
type collectionTaskEnvelope struct {
	TaskID       string    `json:"task_id"`
	Kind         string    `json:"kind"`
	CollectionID string    `json:"collection_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

func (s *Scheduler) ScheduleCreateIndex(ctx context.Context, documentID string, specs []reconciler.IndexSpec) error {
	return s.pushIndexTask(ctx, indexTaskEnvelope{
		TaskID:     uuid.New().String(),
		Action:     reconciler.ActionCreate,
		DocumentID: documentID,
		Specs:      specs,
		EnqueuedAt: time.Now().UTC(),
	})
}

func (s *Scheduler) ScheduleUpdateIndex(ctx context.Context, documentID string, specs []reconciler.IndexSpec) error {
	return s.pushIndexTask(ctx, indexTaskEnvelope{
		TaskID:     uuid.New().String(),
		Action:     reconciler.ActionUpdate,
		DocumentID: documentID,
		Specs:      specs,
		EnqueuedAt: time.Now().UTC(),
	})
}

func (s *Scheduler) ScheduleDeleteIndex(ctx context.Context, documentID string, types []domain.IndexType) error {
	return s.pushIndexTask(ctx, indexTaskEnvelope{
		TaskID:     uuid.New().String(),
		Action:     reconciler.ActionDelete,
		DocumentID: documentID,
		IndexTypes: types,
		EnqueuedAt: time.Now().UTC(),
	})
}

func (s *Scheduler) ScheduleSummaryGeneration(ctx context.Context, summaryID, collectionID string, targetVersion int64) error {
	envelope := summaryTaskEnvelope{
		TaskID:        uuid.New().String(),
		SummaryID:     summaryID,
		CollectionID:  collectionID,
		TargetVersion: targetVersion,
		EnqueuedAt:    time.Now().UTC(),
	}
	return s.push(ctx, s.queue("summary"), envelope)
}

func (s *Scheduler) ScheduleExpiredDocumentCleanup(ctx context.Context, collectionID string) error {
	envelope := collectionTaskEnvelope{
		TaskID:       uuid.New().String(),
		Kind:         "cleanup_expired_documents",
		CollectionID: collectionID,
		EnqueuedAt:   time.Now().UTC(),
	}
	return s.push(ctx, s.queue("collection"), envelope)
}

func (s *Scheduler) pushIndexTask(ctx context.Context, envelope indexTaskEnvelope) error {
	if err := s.push(ctx, s.queue("index"), envelope); err != nil {
		return err
	}
	slog.DebugContext(ctx, "enqueued index task",
		"task_id", envelope.TaskID,
		"action", envelope.Action,
		"document_id", envelope.DocumentID)
	return nil
}

// queue returns the full queue key for a task kind.
func (s *Scheduler) queue(kind string) string {
	return s.prefix + ":" + kind
}

// push serialises the envelope and LPUSHes it, retrying transient failures
// with exponential backoff.
func (s *Scheduler) push(ctx context.Context, queue string, envelope any) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal task envelope: %w", err)
	}

	operation := func() error {
		return s.client.LPush(ctx, queue, payload).Err()
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("failed to enqueue task on %s: %w", queue, err)
	}
	return nil
}
