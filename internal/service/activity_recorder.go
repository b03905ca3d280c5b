package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/docvault-api/internal/models"
	"github.com/noah-isme/docvault-api/pkg/jobs"
)

type activityQueue interface {
	TryEnqueue(job jobs.Job) error
}

type activityStore interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
}

type activityMetrics interface {
	RecordActivityDropped(reason string)
}

// ActivityEvent is one entry for the project activity feed.
type ActivityEvent struct {
	TenantID    string
	ProjectID   string
	ActorID     string
	Action      string
	EntityType  string
	EntityID    string
	Description string
	Metadata    map[string]interface{}
}

// ActivityRecorder hands events to a bounded queue without ever blocking or failing the caller.
type ActivityRecorder struct {
	queue   activityQueue
	metrics activityMetrics
	logger  *zap.Logger
}

// NewActivityRecorder constructs the recorder. A nil queue turns recording into a no-op.
func NewActivityRecorder(queue activityQueue, metrics activityMetrics, logger *zap.Logger) *ActivityRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityRecorder{queue: queue, metrics: metrics, logger: logger}
}

// Record enqueues the event. Failures are logged and counted, never returned.
func (r *ActivityRecorder) Record(ctx context.Context, event ActivityEvent) {
	if r == nil || r.queue == nil {
		return
	}
	entry, err := event.toLog()
	if err != nil {
		r.drop(event, "encode", err)
		return
	}
	if err := r.queue.TryEnqueue(jobs.Job{ID: entry.ID, Type: entry.Action, Payload: entry}); err != nil {
		reason := "queue_stopped"
		if errors.Is(err, jobs.ErrQueueFull) {
			reason = "queue_full"
		}
		r.drop(event, reason, err)
	}
}

func (r *ActivityRecorder) drop(event ActivityEvent, reason string, err error) {
	r.logger.Warn("activity event dropped",
		zap.String("action", event.Action),
		zap.String("entity_id", event.EntityID),
		zap.String("tenant_id", event.TenantID),
		zap.String("reason", reason),
		zap.Error(err),
	)
	if r.metrics != nil {
		r.metrics.RecordActivityDropped(reason)
	}
}

func (e ActivityEvent) toLog() (*models.ActivityLog, error) {
	entry := &models.ActivityLog{
		ID:          uuid.NewString(),
		TenantID:    e.TenantID,
		ProjectID:   optionalString(e.ProjectID),
		ActorID:     optionalString(e.ActorID),
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Description: e.Description,
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal activity metadata: %w", err)
		}
		entry.Metadata = raw
	}
	return entry, nil
}

// ActivityWorker persists queued activity entries.
type ActivityWorker struct {
	repo    activityStore
	metrics activityMetrics
	logger  *zap.Logger
}

// NewActivityWorker constructs a worker.
func NewActivityWorker(repo activityStore, metrics activityMetrics, logger *zap.Logger) *ActivityWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityWorker{repo: repo, metrics: metrics, logger: logger}
}

// Handle processes a queue job.
func (w *ActivityWorker) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.ActivityLog)
	if !ok || entry == nil {
		w.logger.Warn("unexpected activity payload", zap.String("job_id", job.ID))
		if w.metrics != nil {
			w.metrics.RecordActivityDropped("bad_payload")
		}
		return nil
	}
	if err := w.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("persist activity %s: %w", entry.Action, err)
	}
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
