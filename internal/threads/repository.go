package threads

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
)

// Repository persists threads, messages and unread counters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a threads repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const threadColumns = `t.id, t.event_id, t.subject, t.created_by, t.created_by_name, t.creator_role,
	t.recipient_type, t.recipients, t.status, t.resolved_by, t.resolved_by_name, t.resolved_at,
	t.last_message_at, t.version, t.created_at,
	COALESCE((SELECT jsonb_object_agg(u.user_id, u.count) FROM thread_unread u WHERE u.thread_id = t.id), '{}'::jsonb)`

const messageColumns = `id, thread_id, event_id, seq, sender_id, sender_name, content, attachment_key, created_at`

func scanThread(row pgx.Row) (*models.Thread, error) {
	var t models.Thread
	var creatorRole, recipientType, status string
	err := row.Scan(&t.ID, &t.EventID, &t.Subject, &t.CreatedBy, &t.CreatedByName, &creatorRole,
		&recipientType, &t.Recipients, &status, &t.ResolvedBy, &t.ResolvedByName, &t.ResolvedAt,
		&t.LastMessageAt, &t.Version, &t.CreatedAt, &t.UnreadCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	t.CreatorRole = models.EventRole(creatorRole)
	t.RecipientType = models.RecipientType(recipientType)
	t.Status = models.ThreadStatus(status)
	if t.Recipients == nil {
		t.Recipients = []uuid.UUID{}
	}
	if t.UnreadCount == nil {
		t.UnreadCount = map[uuid.UUID]int{}
	}
	return &t, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.EventID, &m.Seq, &m.SenderID, &m.SenderName, &m.Content, &m.AttachmentKey, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	return &m, nil
}

func getThread(ctx context.Context, q queryer, id uuid.UUID) (*models.Thread, error) {
	return scanThread(q.QueryRow(ctx, `SELECT `+threadColumns+` FROM message_threads t WHERE t.id = $1`, id))
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Backend(err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return apperr.Backend(tx.Commit(ctx))
}

// lockThread takes the row lock every thread mutation serializes on and returns the status.
func lockThread(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.ThreadStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM message_threads WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", apperr.Backend(err)
	}
	return models.ThreadStatus(status), nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return apperr.ErrNotFound
	}
	return apperr.Backend(err)
}

// CreateThread inserts t with its unread rows and the optional first message. ID, timestamps
// and version are filled from the database.
func (r *Repository) CreateThread(ctx context.Context, t *models.Thread, initial *models.Message) (*models.Thread, error) {
	var created *models.Thread
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		const q = `INSERT INTO message_threads
			(event_id, subject, created_by, created_by_name, creator_role, recipient_type, recipients)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`
		var id uuid.UUID
		if err := tx.QueryRow(ctx, q, t.EventID, t.Subject, t.CreatedBy, t.CreatedByName,
			string(t.CreatorRole), string(t.RecipientType), t.Recipients).Scan(&id); err != nil {
			return mapWriteErr(err)
		}
		for userID, count := range t.UnreadCount {
			if _, err := tx.Exec(ctx, `INSERT INTO thread_unread (thread_id, user_id, count) VALUES ($1, $2, $3)`,
				id, userID, count); err != nil {
				return mapWriteErr(err)
			}
		}
		if initial != nil {
			const mq = `INSERT INTO thread_messages (thread_id, event_id, seq, sender_id, sender_name, content, attachment_key, created_at)
				SELECT id, event_id, 1, $2, $3, $4, $5, last_message_at FROM message_threads WHERE id = $1`
			if _, err := tx.Exec(ctx, mq, id, initial.SenderID, initial.SenderName, initial.Content, initial.AttachmentKey); err != nil {
				return mapWriteErr(err)
			}
		}
		var err error
		created, err = getThread(ctx, tx, id)
		return err
	})
	return created, err
}

// GetThread returns a thread with its unread counters.
func (r *Repository) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	return getThread(ctx, r.pool, id)
}

// AppendMessage stores m, moves last_message_at forward and increments unread for every
// participant except the sender. With blockResolved, a resolved thread rejects the message.
func (r *Repository) AppendMessage(ctx context.Context, m *models.Message, blockResolved bool) (*models.Message, *models.Thread, error) {
	var (
		stored *models.Message
		thread *models.Thread
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		status, err := lockThread(ctx, tx, m.ThreadID)
		if err != nil {
			return err
		}
		if blockResolved && status == models.ThreadResolved {
			return apperr.ErrThreadResolved
		}
		// The row lock orders writers: seq is the next number in the thread and GREATEST keeps
		// created_at monotone even when clocks of concurrent transactions disagree.
		const mq = `INSERT INTO thread_messages (thread_id, event_id, seq, sender_id, sender_name, content, attachment_key, created_at)
			SELECT id, event_id,
				(SELECT COALESCE(MAX(seq), 0) + 1 FROM thread_messages WHERE thread_id = $1),
				$2, $3, $4, $5, GREATEST(clock_timestamp(), last_message_at + interval '1 microsecond')
			FROM message_threads WHERE id = $1
			RETURNING ` + messageColumns
		stored, err = scanMessage(tx.QueryRow(ctx, mq, m.ThreadID, m.SenderID, m.SenderName, m.Content, m.AttachmentKey))
		if err != nil {
			return mapWriteErr(err)
		}
		if _, err := tx.Exec(ctx, `UPDATE message_threads SET last_message_at = $2, version = version + 1 WHERE id = $1`,
			m.ThreadID, stored.CreatedAt); err != nil {
			return apperr.Backend(err)
		}
		const uq = `INSERT INTO thread_unread (thread_id, user_id, count)
			SELECT t.id, p, 1 FROM message_threads t, unnest(array_append(t.recipients, t.created_by)) AS p
			WHERE t.id = $1 AND p <> $2
			ON CONFLICT (thread_id, user_id) DO UPDATE SET count = thread_unread.count + 1`
		if _, err := tx.Exec(ctx, uq, m.ThreadID, m.SenderID); err != nil {
			return mapWriteErr(err)
		}
		thread, err = getThread(ctx, tx, m.ThreadID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return stored, thread, nil
}

// SetStatus moves the thread to status. A thread already in that state is returned unchanged
// with changed=false.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.ThreadStatus, by uuid.UUID, byName string, at time.Time) (thread *models.Thread, changed bool, err error) {
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := lockThread(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != status {
			changed = true
			var q string
			var args []any
			if status == models.ThreadResolved {
				q = `UPDATE message_threads SET status = 'resolved', resolved_by = $2, resolved_by_name = $3,
					resolved_at = $4, version = version + 1 WHERE id = $1`
				args = []any{id, by, byName, at}
			} else {
				q = `UPDATE message_threads SET status = 'open', resolved_by = NULL, resolved_by_name = '',
					resolved_at = NULL, version = version + 1 WHERE id = $1`
				args = []any{id}
			}
			if _, err := tx.Exec(ctx, q, args...); err != nil {
				return apperr.Backend(err)
			}
		}
		thread, err = getThread(ctx, tx, id)
		return err
	})
	return thread, changed, err
}

// MarkRead zeroes the user's unread counter.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (*models.Thread, error) {
	var thread *models.Thread
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockThread(ctx, tx, id); err != nil {
			return err
		}
		const q = `INSERT INTO thread_unread (thread_id, user_id, count) VALUES ($1, $2, 0)
			ON CONFLICT (thread_id, user_id) DO UPDATE SET count = 0`
		if _, err := tx.Exec(ctx, q, id, userID); err != nil {
			return mapWriteErr(err)
		}
		if _, err := tx.Exec(ctx, `UPDATE message_threads SET version = version + 1 WHERE id = $1`, id); err != nil {
			return apperr.Backend(err)
		}
		var err error
		thread, err = getThread(ctx, tx, id)
		return err
	})
	return thread, err
}

// ListEventThreads returns the event's threads, most recently active first. A non-nil
// participant limits the list to threads that user created or receives.
func (r *Repository) ListEventThreads(ctx context.Context, eventID uuid.UUID, participant *uuid.UUID) ([]models.Thread, error) {
	q := `SELECT ` + threadColumns + ` FROM message_threads t
		WHERE t.event_id = $1 AND ($2::uuid IS NULL OR t.created_by = $2 OR $2 = ANY(t.recipients))
		ORDER BY t.last_message_at DESC, t.id`
	rows, err := r.pool.Query(ctx, q, eventID, participant)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()
	list := []models.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, apperr.Backend(rows.Err())
}

// ListMessages returns a thread's messages oldest first.
func (r *Repository) ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error) {
	return r.ListMessagesAfter(ctx, threadID, 0)
}

// ListMessagesAfter returns the thread's messages with seq greater than afterSeq, in seq order.
func (r *Repository) ListMessagesAfter(ctx context.Context, threadID uuid.UUID, afterSeq int64) ([]models.Message, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+messageColumns+` FROM thread_messages WHERE thread_id = $1 AND seq > $2 ORDER BY seq`, threadID, afterSeq)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()
	list := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, apperr.Backend(rows.Err())
}

// GetMessage returns one message.
func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM thread_messages WHERE id = $1`, id))
}

// CountByStatus returns open and resolved thread counts for an event.
func (r *Repository) CountByStatus(ctx context.Context, eventID uuid.UUID) (open, resolved int, err error) {
	const q = `SELECT COUNT(*) FILTER (WHERE status = 'open'), COUNT(*) FILTER (WHERE status = 'resolved')
		FROM message_threads WHERE event_id = $1`
	err = r.pool.QueryRow(ctx, q, eventID).Scan(&open, &resolved)
	return open, resolved, apperr.Backend(err)
}

// UnreadTotal sums the user's unread counters across the event's threads.
func (r *Repository) UnreadTotal(ctx context.Context, eventID, userID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(u.count), 0) FROM thread_unread u
		INNER JOIN message_threads t ON t.id = u.thread_id
		WHERE t.event_id = $1 AND u.user_id = $2`
	var total int
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&total)
	return total, apperr.Backend(err)
}
