// Package collaborators manages who works on an event: collaborator records, visibility and
// invite links.
package collaborators

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/metrics"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
)

// ErrInviteUnusable is returned for expired or already redeemed invites.
var ErrInviteUnusable = fmt.Errorf("%w: invite expired or already used", apperr.ErrInvalidArgument)

// Store is the collaborator and invite persistence.
type Store interface {
	access.CollaboratorReader
	ListCollaborators(ctx context.Context, eventID uuid.UUID) ([]models.Collaborator, error)
	UpsertCollaborator(ctx context.Context, eventID, userID uuid.UUID, role models.EventRole) (*models.Collaborator, error)
	DeleteCollaborator(ctx context.Context, eventID, userID uuid.UUID) error
	SetVisibility(ctx context.Context, eventID uuid.UUID, v models.Visibility) error
	CreateInvite(ctx context.Context, inv *models.Invite) error
	GetInviteByToken(ctx context.Context, token string) (*models.Invite, error)
	RedeemInvite(ctx context.Context, token string, userID uuid.UUID, now time.Time) (*models.Collaborator, error)
}

// UserFinder looks up accounts.
type UserFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Notifier enqueues user notifications.
type Notifier interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Config holds invite settings.
type Config struct {
	BaseURL   string
	InviteTTL time.Duration
}

// InviteLink is a freshly generated invite.
type InviteLink struct {
	Token     string           `json:"token"`
	URL       string           `json:"url"`
	Role      models.EventRole `json:"role"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Service implements collaborator management.
type Service struct {
	store    Store
	events   access.EventReader
	users    UserFinder
	eval     *access.Evaluator
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a collaborator service. notifier may be nil.
func NewService(store Store, events access.EventReader, users UserFinder, eval *access.Evaluator, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = 7 * 24 * time.Hour
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Service{
		store: store, events: events, users: users, eval: eval, notifier: notifier,
		cfg: cfg, logger: logger, now: time.Now,
	}
}

func (s *Service) requireManager(ctx context.Context, actor *auth.Principal, eventID uuid.UUID) (*models.Event, error) {
	if actor == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !s.eval.CanManageCollaborators(ctx, eventID, actor.UserID, actor.Role) {
		return nil, apperr.ErrPermissionDenied
	}
	return event, nil
}

// AddCollaborator adds userID to the event with role, or replaces their role. The original
// added time is kept.
func (s *Service) AddCollaborator(ctx context.Context, actor *auth.Principal, eventID, userID uuid.UUID, role models.EventRole) (*models.Collaborator, error) {
	if !role.Assignable() {
		return nil, apperr.Invalid("role %q cannot be assigned", role)
	}
	event, err := s.requireManager(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ID == event.CreatedBy {
		return nil, apperr.Invalid("the event owner cannot be added as a collaborator")
	}
	c, err := s.store.UpsertCollaborator(ctx, eventID, userID, role)
	if err != nil {
		return nil, err
	}
	c.Email, c.FullName = user.Email, user.FullName
	metrics.CollaboratorMutations.WithLabelValues("add").Inc()
	s.logger.Info("collaborator added",
		zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()),
		zap.String("role", string(role)), zap.String("actor_id", actor.UserID.String()))
	s.notify(ctx, queue.NotificationPayload{
		Kind:    models.NotificationCollaboratorAdded,
		EventID: eventID,
		UserID:  userID,
		ActorID: actor.UserID,
		Subject: fmt.Sprintf("You were added to %s as %s", event.Title, role),
	})
	return c, nil
}

// AddCollaboratorByEmail resolves the email to an account and adds it.
func (s *Service) AddCollaboratorByEmail(ctx context.Context, actor *auth.Principal, eventID uuid.UUID, email string, role models.EventRole) (*models.Collaborator, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Invalid("email required")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.AddCollaborator(ctx, actor, eventID, user.ID, role)
}

// RemoveCollaborator removes userID from the event. Removing a non-collaborator succeeds.
func (s *Service) RemoveCollaborator(ctx context.Context, actor *auth.Principal, eventID, userID uuid.UUID) error {
	if _, err := s.requireManager(ctx, actor, eventID); err != nil {
		return err
	}
	if err := s.store.DeleteCollaborator(ctx, eventID, userID); err != nil {
		return err
	}
	metrics.CollaboratorMutations.WithLabelValues("remove").Inc()
	s.logger.Info("collaborator removed",
		zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()),
		zap.String("actor_id", actor.UserID.String()))
	return nil
}

// ListCollaborators returns the event's collaborators ordered by when they were added.
func (s *Service) ListCollaborators(ctx context.Context, eventID uuid.UUID) ([]models.Collaborator, error) {
	return s.store.ListCollaborators(ctx, eventID)
}

// UpdateVisibility changes the event's visibility. Only the owner may do this.
func (s *Service) UpdateVisibility(ctx context.Context, actor *auth.Principal, eventID uuid.UUID, v models.Visibility) error {
	if actor == nil {
		return apperr.ErrNotAuthenticated
	}
	if !v.Valid() {
		return apperr.Invalid("invalid visibility %q", v)
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.CreatedBy != actor.UserID {
		return apperr.ErrPermissionDenied
	}
	if err := s.store.SetVisibility(ctx, eventID, v); err != nil {
		return err
	}
	s.logger.Info("event visibility changed", zap.String("event_id", eventID.String()), zap.String("visibility", string(v)))
	return nil
}

// GenerateInviteLink creates a single-use invite that grants role when redeemed.
func (s *Service) GenerateInviteLink(ctx context.Context, actor *auth.Principal, eventID uuid.UUID, role models.EventRole) (*InviteLink, error) {
	if !role.Assignable() {
		return nil, apperr.Invalid("role %q cannot be assigned", role)
	}
	if _, err := s.requireManager(ctx, actor, eventID); err != nil {
		return nil, err
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}
	inv := &models.Invite{
		EventID:   eventID,
		Role:      role,
		Token:     token,
		CreatedBy: actor.UserID,
		ExpiresAt: s.now().Add(s.cfg.InviteTTL),
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("invite created", zap.String("event_id", eventID.String()), zap.String("role", string(role)),
		zap.String("actor_id", actor.UserID.String()))
	return &InviteLink{Token: token, URL: s.cfg.BaseURL + "/invite/" + token, Role: role, ExpiresAt: inv.ExpiresAt}, nil
}

// RedeemInvite adds the caller to the invite's event with the invite's role and burns the token.
func (s *Service) RedeemInvite(ctx context.Context, actor *auth.Principal, token string) (*models.Collaborator, error) {
	if actor == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	inv, err := s.store.GetInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !inv.Usable(now) {
		return nil, ErrInviteUnusable
	}
	event, err := s.events.GetByID(ctx, inv.EventID)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy == actor.UserID {
		return nil, apperr.Invalid("the event owner cannot redeem an invite")
	}
	c, err := s.store.RedeemInvite(ctx, token, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	c.Email, c.FullName = actor.Email, actor.Name
	metrics.CollaboratorMutations.WithLabelValues("redeem").Inc()
	s.logger.Info("invite redeemed", zap.String("event_id", inv.EventID.String()), zap.String("user_id", actor.UserID.String()),
		zap.String("role", string(c.Role)))
	return c, nil
}

func (s *Service) notify(ctx context.Context, payload queue.NotificationPayload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnqueueNotification(ctx, payload); err != nil {
		s.logger.Warn("enqueue notification failed", zap.String("kind", payload.Kind), zap.Error(err))
	}
}

// generateToken returns a URL-safe random token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
