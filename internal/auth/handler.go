package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
	"github.com/eventdesk/backend/pkg/utils"
)

// UserStore is the user persistence the handler needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	Create(ctx context.Context, email, passwordHash, fullName string, role models.AccountRole) (*models.User, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"` // optional, defaults to attendee
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo     UserStore
	jwt      *JWTService
	sessions SessionStore
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo UserStore, jwt *JWTService, sessions SessionStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, sessions: sessions, logger: logger}
}

// Register handles POST /auth/register. Admin accounts cannot be self-registered.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	role := models.AccountAttendee
	if req.Role != "" {
		r, ok := models.ParseAccountRole(req.Role)
		if !ok || r == models.AccountAdmin {
			response.BadRequest(c, "invalid role")
			return
		}
		role = r
	}

	_, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err == nil {
		response.BadRequest(c, "email already registered")
		return
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		response.Error(c, err)
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooShort) || errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.Create(c.Request.Context(), req.Email, hash, strings.TrimSpace(req.FullName), role)
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Error(c, err)
		return
	}

	token, ok := h.startSession(c, user)
	if !ok {
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.Unauthorized(c, "invalid email or password")
			return
		}
		response.Error(c, err)
		return
	}

	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, ok := h.startSession(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: TokenResponse{Token: token, User: user.ToPublic()}})
}

func (h *Handler) startSession(c *gin.Context, user *models.User) (string, bool) {
	token, claims, err := h.jwt.Generate(user)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return "", false
	}
	if err := h.sessions.Create(c.Request.Context(), claims.ID, user.ID, h.jwt.TTL()); err != nil {
		h.logger.Error("create session", zap.String("user_id", user.ID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, try again")
		return "", false
	}
	return token, true
}

// Logout handles POST /auth/logout. The token stops working immediately.
func (h *Handler) Logout(c *gin.Context) {
	p := CurrentPrincipal(c)
	if p == nil {
		response.Error(c, apperr.ErrNotAuthenticated)
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), p.SessionID); err != nil {
		h.logger.Error("delete session", zap.String("user_id", p.UserID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable, try again")
		return
	}
	response.NoContent(c)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	p := CurrentPrincipal(c)
	if p == nil {
		response.Error(c, apperr.ErrNotAuthenticated)
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}

// List handles GET /users (admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Body{Success: true, Data: list})
}

// Lookup handles GET /users/lookup?email=. It resolves an email to the public user record
// so collaborators can be added by email.
func (h *Handler) Lookup(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		response.BadRequest(c, "email required")
		return
	}
	user, err := h.repo.GetByEmail(c.Request.Context(), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}
