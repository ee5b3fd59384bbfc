package collaborators

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

// Repository persists collaborator records and invites. Every collaborator write rebuilds
// the event's organizers/volunteers/sponsors columns in the same transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a collaborators repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rebuildTeamLists = `UPDATE events SET
	organizers = ARRAY(SELECT user_id FROM event_collaborators WHERE event_id = $1 AND role = 'organizer' ORDER BY added_at),
	volunteers = ARRAY(SELECT user_id FROM event_collaborators WHERE event_id = $1 AND role = 'volunteer' ORDER BY added_at),
	sponsors   = ARRAY(SELECT user_id FROM event_collaborators WHERE event_id = $1 AND role = 'sponsor' ORDER BY added_at),
	updated_at = NOW()
	WHERE id = $1`

// lockEvent serializes collaborator writes per event so the rebuilt lists always see the
// latest committed records.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return apperr.Backend(err)
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

// GetCollaborator returns one collaborator record, or apperr.ErrNotFound.
func (r *Repository) GetCollaborator(ctx context.Context, eventID, userID uuid.UUID) (*models.Collaborator, error) {
	const q = `SELECT event_id, user_id, role, added_at FROM event_collaborators WHERE event_id = $1 AND user_id = $2`
	var c models.Collaborator
	var role string
	err := r.pool.QueryRow(ctx, q, eventID, userID).Scan(&c.EventID, &c.UserID, &role, &c.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	c.Role = models.EventRole(role)
	return &c, nil
}

// ListCollaborators returns the event's collaborators with user details, oldest first.
func (r *Repository) ListCollaborators(ctx context.Context, eventID uuid.UUID) ([]models.Collaborator, error) {
	const q = `SELECT ec.event_id, ec.user_id, ec.role, u.email, u.full_name, ec.added_at
		FROM event_collaborators ec
		INNER JOIN users u ON u.id = ec.user_id
		WHERE ec.event_id = $1
		ORDER BY ec.added_at ASC, ec.user_id`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()
	list := []models.Collaborator{}
	for rows.Next() {
		var c models.Collaborator
		var role string
		if err := rows.Scan(&c.EventID, &c.UserID, &role, &c.Email, &c.FullName, &c.AddedAt); err != nil {
			return nil, apperr.Backend(err)
		}
		c.Role = models.EventRole(role)
		list = append(list, c)
	}
	return list, apperr.Backend(rows.Err())
}

func upsert(ctx context.Context, tx pgx.Tx, eventID, userID uuid.UUID, role models.EventRole) (*models.Collaborator, error) {
	const q = `INSERT INTO event_collaborators (event_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING event_id, user_id, role, added_at`
	var c models.Collaborator
	var stored string
	if err := tx.QueryRow(ctx, q, eventID, userID, string(role)).Scan(&c.EventID, &c.UserID, &stored, &c.AddedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	c.Role = models.EventRole(stored)
	if _, err := tx.Exec(ctx, rebuildTeamLists, eventID); err != nil {
		return nil, apperr.Backend(err)
	}
	return &c, nil
}

// UpsertCollaborator adds the user or replaces their role. added_at is kept on replace.
func (r *Repository) UpsertCollaborator(ctx context.Context, eventID, userID uuid.UUID, role models.EventRole) (*models.Collaborator, error) {
	var out *models.Collaborator
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}
		c, err := upsert(ctx, tx, eventID, userID, role)
		out = c
		return err
	})
	return out, err
}

// DeleteCollaborator removes the record if present. Removing a missing record succeeds.
func (r *Repository) DeleteCollaborator(ctx context.Context, eventID, userID uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM event_collaborators WHERE event_id = $1 AND user_id = $2`, eventID, userID); err != nil {
			return apperr.Backend(err)
		}
		_, err := tx.Exec(ctx, rebuildTeamLists, eventID)
		return apperr.Backend(err)
	})
}

// SetVisibility changes who can see the event.
func (r *Repository) SetVisibility(ctx context.Context, eventID uuid.UUID, v models.Visibility) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET visibility = $1, updated_at = NOW() WHERE id = $2`, string(v), eventID)
	if err != nil {
		return apperr.Backend(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// CreateInvite stores a new invite.
func (r *Repository) CreateInvite(ctx context.Context, inv *models.Invite) error {
	const q = `INSERT INTO event_invites (event_id, role, token, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, inv.EventID, string(inv.Role), inv.Token, inv.CreatedBy, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt)
	return apperr.Backend(err)
}

// GetInviteByToken returns an invite, or apperr.ErrNotFound.
func (r *Repository) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	const q = `SELECT id, event_id, role, token, created_by, expires_at, used_at, used_by, created_at
		FROM event_invites WHERE token = $1`
	var inv models.Invite
	var role string
	err := r.pool.QueryRow(ctx, q, token).Scan(&inv.ID, &inv.EventID, &role, &inv.Token, &inv.CreatedBy,
		&inv.ExpiresAt, &inv.UsedAt, &inv.UsedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	inv.Role = models.EventRole(role)
	return &inv, nil
}

// RedeemInvite claims the invite for userID and adds the collaborator in one transaction.
// Only one caller can claim a token; the rest get ErrInviteUnusable.
func (r *Repository) RedeemInvite(ctx context.Context, token string, userID uuid.UUID, now time.Time) (*models.Collaborator, error) {
	var out *models.Collaborator
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		const claim = `UPDATE event_invites SET used_at = $3, used_by = $2
			WHERE token = $1 AND used_at IS NULL AND expires_at > $3
			RETURNING event_id, role`
		var eventID uuid.UUID
		var role string
		if err := tx.QueryRow(ctx, claim, token, userID, now).Scan(&eventID, &role); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInviteUnusable
			}
			return apperr.Backend(err)
		}
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}
		c, err := upsert(ctx, tx, eventID, userID, models.EventRole(role))
		out = c
		return err
	})
	return out, err
}

// PurgeExpiredInvites deletes unused invites that expired before the given time.
func (r *Repository) PurgeExpiredInvites(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_invites WHERE used_at IS NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, apperr.Backend(err)
	}
	return tag.RowsAffected(), nil
}
