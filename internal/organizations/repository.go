package organizations

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

// ErrSlugTaken is returned when an organization slug is already in use.
var ErrSlugTaken = errors.New("organization slug already exists")

// Repository handles organization and organization_users persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the organization and makes its creator the owner, in one transaction.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Backend(err)
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO organizations (name, slug, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, q, org.Name, org.Slug, org.CreatedBy).Scan(&org.ID, &org.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlugTaken
		}
		return apperr.Backend(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO organization_users (organization_id, user_id, role) VALUES ($1, $2, $3)`,
		org.ID, org.CreatedBy, models.OrgRoleOwner); err != nil {
		return apperr.Backend(err)
	}
	return apperr.Backend(tx.Commit(ctx))
}

// GetBySlug returns an organization by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	const q = `SELECT id, name, slug, created_by, created_at FROM organizations WHERE slug = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, slug).Scan(&org.ID, &org.Name, &org.Slug, &org.CreatedBy, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Backend(err)
	}
	return &org, nil
}

// AddMember adds a user as a member. Existing memberships keep their role.
func (r *Repository) AddMember(ctx context.Context, orgID, userID uuid.UUID) error {
	const q = `INSERT INTO organization_users (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, orgID, userID, models.OrgRoleMember)
	return apperr.Backend(err)
}

// IsMember reports whether the user belongs to the organization.
func (r *Repository) IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM organization_users WHERE organization_id = $1 AND user_id = $2)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, orgID, userID).Scan(&ok); err != nil {
		return false, apperr.Backend(err)
	}
	return ok, nil
}

// ListForUser returns organizations the user is a member of.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	const q = `SELECT o.id, o.name, o.slug, o.created_by, o.created_at
		FROM organizations o
		INNER JOIN organization_users ou ON ou.organization_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()
	var list []*models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, apperr.Backend(err)
		}
		list = append(list, &o)
	}
	return list, apperr.Backend(rows.Err())
}

// Member is an organization member with user details.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ListMembers returns members of an organization, oldest first.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	const q = `SELECT ou.user_id, u.email, u.full_name, ou.role, ou.joined_at
		FROM organization_users ou
		INNER JOIN users u ON u.id = ou.user_id
		WHERE ou.organization_id = $1
		ORDER BY ou.joined_at ASC`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.FullName, &m.Role, &m.JoinedAt); err != nil {
			return nil, apperr.Backend(err)
		}
		list = append(list, m)
	}
	return list, apperr.Backend(rows.Err())
}
