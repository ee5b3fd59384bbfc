package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
)

type memLogs struct {
	mu      sync.Mutex
	byJob   map[string]*models.NotificationLog
	missing bool
}

func newMemLogs() *memLogs { return &memLogs{byJob: map[string]*models.NotificationLog{}} }

func (m *memLogs) Begin(_ context.Context, jobID string, p queue.NotificationPayload) (*models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing {
		return nil, apperr.ErrNotFound
	}
	l, ok := m.byJob[jobID]
	if !ok {
		l = &models.NotificationLog{ID: uuid.New(), EventID: p.EventID, UserID: p.UserID, Kind: p.Kind, Subject: p.Subject}
		m.byJob[jobID] = l
	}
	l.Attempts++
	l.Status = models.NotificationPending
	return l, nil
}

func (m *memLogs) find(id uuid.UUID) *models.NotificationLog {
	for _, l := range m.byJob {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (m *memLogs) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	l.Status, l.SentAt = models.NotificationSent, &at
	return nil
}

func (m *memLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	l.Status, l.ErrorMessage = models.NotificationFailed, reason
	return nil
}

type flakyDeliverer struct {
	mu        sync.Mutex
	failures  int
	delivered []uuid.UUID
}

func (d *flakyDeliverer) Deliver(_ context.Context, l *models.NotificationLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("redis unavailable")
	}
	d.delivered = append(d.delivered, l.UserID)
	return nil
}

// chanQueue mimics the Redis queue: Retry re-enqueues until MaxRetries, then dead-letters.
type chanQueue struct {
	jobs chan *queue.Job
	mu   sync.Mutex
	dlq  []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	select {
	case j := <-q.jobs:
		return j, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *chanQueue) Retry(_ context.Context, job *queue.Job) (bool, error) {
	job.Attempt++
	if job.Attempt >= queue.MaxRetries {
		q.mu.Lock()
		q.dlq = append(q.dlq, job)
		q.mu.Unlock()
		return true, nil
	}
	q.jobs <- job
	return false, nil
}

func (q *chanQueue) deadLettered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

func notificationJob(t *testing.T) (*queue.Job, queue.NotificationPayload) {
	t.Helper()
	p := queue.NotificationPayload{
		Kind: models.NotificationThreadMessage, EventID: uuid.New(), UserID: uuid.New(),
		ActorID: uuid.New(), Subject: "Setup Help", Preview: "On my way",
	}
	job, err := queue.NewJob(queue.JobTypeNotification, p)
	require.NoError(t, err)
	return job, p
}

func TestProcessDeliversAndMarksSent(t *testing.T) {
	logs, d := newMemLogs(), &flakyDeliverer{}
	p := NewNotificationProcessor(nil, logs, d, nil)
	job, payload := notificationJob(t)

	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, []uuid.UUID{payload.UserID}, d.delivered)
	l := logs.byJob[job.ID]
	assert.Equal(t, models.NotificationSent, l.Status)
	assert.NotNil(t, l.SentAt)
}

func TestProcessFailureMarksFailed(t *testing.T) {
	logs, d := newMemLogs(), &flakyDeliverer{failures: 1}
	p := NewNotificationProcessor(nil, logs, d, nil)
	job, _ := notificationJob(t)

	assert.Error(t, p.Process(context.Background(), job))
	l := logs.byJob[job.ID]
	assert.Equal(t, models.NotificationFailed, l.Status)
	assert.Equal(t, "redis unavailable", l.ErrorMessage)

	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, models.NotificationSent, l.Status)
	assert.Equal(t, 2, l.Attempts, "retries reuse the log row")
}

func TestProcessDropsVanishedTargets(t *testing.T) {
	logs := newMemLogs()
	logs.missing = true
	d := &flakyDeliverer{}
	p := NewNotificationProcessor(nil, logs, d, nil)
	job, _ := notificationJob(t)

	assert.NoError(t, p.Process(context.Background(), job))
	assert.Empty(t, d.delivered)
}

func TestProcessRejectsUnknownJobs(t *testing.T) {
	p := NewNotificationProcessor(nil, newMemLogs(), &flakyDeliverer{}, nil)
	assert.Error(t, p.Process(context.Background(), &queue.Job{ID: "x", Type: "email_digest"}))
	assert.Error(t, p.Process(context.Background(), &queue.Job{ID: "y", Type: queue.JobTypeNotification, Payload: []byte("{")}))
}

func TestRunRetriesThenDeadLetters(t *testing.T) {
	q := &chanQueue{jobs: make(chan *queue.Job, 8)}
	logs, d := newMemLogs(), &flakyDeliverer{failures: 100}
	p := NewNotificationProcessor(q, logs, d, nil)
	p.backoff = time.Millisecond

	job, _ := notificationJob(t)
	q.jobs <- job

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return q.deadLettered() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	logs.mu.Lock()
	defer logs.mu.Unlock()
	assert.Equal(t, queue.MaxRetries, logs.byJob[job.ID].Attempts)
	assert.Equal(t, models.NotificationFailed, logs.byJob[job.ID].Status)
}

func TestRunRecoversAfterTransientFailure(t *testing.T) {
	q := &chanQueue{jobs: make(chan *queue.Job, 8)}
	logs, d := newMemLogs(), &flakyDeliverer{failures: 1}
	p := NewNotificationProcessor(q, logs, d, nil)
	p.backoff = time.Millisecond

	job, payload := notificationJob(t)
	q.jobs <- job

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	assert.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.delivered) == 1 && d.delivered[0] == payload.UserID
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, q.deadLettered())
}
