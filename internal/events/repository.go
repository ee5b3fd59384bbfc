package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/models"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, title, description, starts_at, ends_at, status, visibility, created_by, organization_id,
	organizers, volunteers, sponsors, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	var status, visibility string
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &status, &visibility, &e.CreatedBy,
		&e.OrganizationID, &e.Organizers, &e.Volunteers, &e.Sponsors, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = models.EventStatus(status)
	e.Visibility = models.Visibility(visibility)
	return &e, nil
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, starts_at, ends_at, status, visibility, created_by, organization_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, e.Title, e.Description, e.StartsAt, e.EndsAt, string(e.Status), string(e.Visibility), e.CreatedBy, e.OrganizationID).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return apperr.Backend(err)
}

// GetByID returns an event by ID, or apperr.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	return e, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]*models.Event, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()

	var list []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Backend(err)
		}
		list = append(list, e)
	}
	return list, apperr.Backend(rows.Err())
}

// ListForUser returns events the user owns or collaborates on, soonest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Event, error) {
	return r.list(ctx, `SELECT `+eventColumns+` FROM events
		WHERE created_by = $1
		   OR id IN (SELECT event_id FROM event_collaborators WHERE user_id = $1)
		ORDER BY starts_at ASC`, userID)
}

// ListPublic returns public events that have not been cancelled.
func (r *Repository) ListPublic(ctx context.Context) ([]*models.Event, error) {
	return r.list(ctx, `SELECT `+eventColumns+` FROM events
		WHERE visibility = 'public' AND status <> 'cancelled'
		ORDER BY starts_at ASC`)
}

// Update updates event details. Nil times keep the stored value.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, title, description string, startsAt, endsAt *time.Time) error {
	const q = `UPDATE events SET title = $1, description = $2, starts_at = COALESCE($3, starts_at),
		ends_at = COALESCE($4, ends_at), updated_at = NOW() WHERE id = $5`
	tag, err := r.pool.Exec(ctx, q, title, description, startsAt, endsAt, id)
	if err != nil {
		return apperr.Backend(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetStatus changes the lifecycle status. Events are never hard-deleted.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return apperr.Backend(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
