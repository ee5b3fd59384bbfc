package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/metrics"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
)

// JobQueue is the job source.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (deadLettered bool, err error)
}

// LogStore records delivery attempts.
type LogStore interface {
	Begin(ctx context.Context, jobID string, p queue.NotificationPayload) (*models.NotificationLog, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Deliverer hands a notification to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, l *models.NotificationLog) error
}

// NotificationProcessor processes notification jobs: record a pending log, deliver, mark sent or failed.
type NotificationProcessor struct {
	queue     JobQueue
	logs      LogStore
	deliverer Deliverer
	logger    *zap.Logger
	backoff   time.Duration
	now       func() time.Time
}

// NewNotificationProcessor creates a notification processor.
func NewNotificationProcessor(q JobQueue, logs LogStore, deliverer Deliverer, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{
		queue: q, logs: logs, deliverer: deliverer, logger: logger,
		backoff: queue.RetryBackoff, now: time.Now,
	}
}

// Process executes one notification job. Jobs whose event or recipient no longer exists are
// dropped without error.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	l, err := p.logs.Begin(ctx, job.ID, payload)
	if errors.Is(err, apperr.ErrNotFound) {
		p.logger.Info("notification target gone, dropping", zap.String("job_id", job.ID),
			zap.String("event_id", payload.EventID.String()), zap.String("user_id", payload.UserID.String()))
		metrics.NotificationJobs.WithLabelValues("dropped").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("record log: %w", err)
	}

	if err := p.deliverer.Deliver(ctx, l); err != nil {
		if markErr := p.logs.MarkFailed(ctx, l.ID, err.Error()); markErr != nil {
			p.logger.Error("mark notification failed", zap.String("log_id", l.ID.String()), zap.Error(markErr))
		}
		metrics.NotificationJobs.WithLabelValues("failed").Inc()
		return fmt.Errorf("deliver: %w", err)
	}
	if err := p.logs.MarkSent(ctx, l.ID, p.now().UTC()); err != nil {
		p.logger.Error("mark notification sent", zap.String("log_id", l.ID.String()), zap.Error(err))
	}
	metrics.NotificationJobs.WithLabelValues("sent").Inc()
	p.logger.Debug("notification delivered", zap.String("job_id", job.ID), zap.String("kind", payload.Kind),
		zap.String("user_id", payload.UserID.String()))
	return nil
}

func (p *NotificationProcessor) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.wait(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			dead, reErr := p.queue.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if dead {
				metrics.NotificationJobs.WithLabelValues("dead_lettered").Inc()
			}
			p.wait(ctx)
		}
	}
}
