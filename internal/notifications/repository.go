// Package notifications records notification deliveries and serves the per-user inbox.
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
)

const logColumns = `id, event_id, thread_id, user_id, kind, subject, preview, attempts, status, sent_at, error_message, created_at`

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLog(row pgx.Row) (*models.NotificationLog, error) {
	var l models.NotificationLog
	err := row.Scan(&l.ID, &l.EventID, &l.ThreadID, &l.UserID, &l.Kind, &l.Subject, &l.Preview,
		&l.Attempts, &l.Status, &l.SentAt, &l.ErrorMessage, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	return &l, nil
}

// Begin records a delivery attempt for a job. Retries of the same job reuse its row, which
// goes back to pending with the attempt counter bumped.
func (r *Repository) Begin(ctx context.Context, jobID string, p queue.NotificationPayload) (*models.NotificationLog, error) {
	const q = `INSERT INTO notification_logs (job_id, event_id, thread_id, user_id, kind, subject, preview, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT (job_id) DO UPDATE SET status = 'pending', attempts = notification_logs.attempts + 1
		RETURNING ` + logColumns
	l, err := scanLog(r.pool.QueryRow(ctx, q, jobID, p.EventID, p.ThreadID, p.UserID, p.Kind, p.Subject, p.Preview))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

// MarkSent marks the log delivered.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs SET status = 'sent', sent_at = $2, error_message = '' WHERE id = $1`, id, at)
	return apperr.Backend(err)
}

// MarkFailed records a failed attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs SET status = 'failed', error_message = $2 WHERE id = $1`, id, reason)
	return apperr.Backend(err)
}

// Get returns one log.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.NotificationLog, error) {
	return scanLog(r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM notification_logs WHERE id = $1`, id))
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]*models.NotificationLog, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()
	list := []*models.NotificationLog{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, apperr.Backend(rows.Err())
}

// ListByEvent returns an event's notification logs, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]*models.NotificationLog, error) {
	return r.list(ctx, `SELECT `+logColumns+` FROM notification_logs WHERE event_id = $1 ORDER BY created_at DESC LIMIT $2`, eventID, limit)
}

// ListForUser returns the notifications addressed to a user, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.NotificationLog, error) {
	return r.list(ctx, `SELECT `+logColumns+` FROM notification_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}
