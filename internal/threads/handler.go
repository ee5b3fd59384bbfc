package threads

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
	"github.com/eventdesk/backend/pkg/storage"
)

// CreateRequest is the body for POST /events/:id/threads.
type CreateRequest struct {
	Subject       string   `json:"subject" binding:"required"`
	RecipientType string   `json:"recipient_type" binding:"required"`
	Recipients    []string `json:"recipients"`
	Message       string   `json:"message"`
}

// MessageRequest is the body for POST /threads/:id/messages.
type MessageRequest struct {
	Content       string `json:"content"`
	AttachmentKey string `json:"attachment_key"`
}

// UploadURLRequest is the body for POST /threads/:id/attachments/upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

// Presigner signs attachment URLs. *storage.S3 implements it.
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string, size int64) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// Handler handles thread HTTP endpoints.
type Handler struct {
	svc       *Service
	presigner Presigner
	logger    *zap.Logger
}

// NewHandler creates a threads handler. presigner may be nil when S3 is not configured.
func NewHandler(svc *Service, presigner Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, presigner: presigner, logger: logger}
}

func idParam(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /events/:id/threads.
func (h *Handler) Create(c *gin.Context) {
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rt := models.RecipientType(req.RecipientType)
	if !rt.Valid() {
		response.BadRequest(c, "invalid recipient_type")
		return
	}
	recipients := make([]uuid.UUID, 0, len(req.Recipients))
	for _, s := range req.Recipients {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid recipient id: "+s)
			return
		}
		recipients = append(recipients, id)
	}
	t, err := h.svc.CreateMessageThread(c.Request.Context(), auth.CurrentPrincipal(c), CreateInput{
		EventID: eventID, Subject: req.Subject, RecipientType: rt, Recipients: recipients, Message: req.Message,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, t)
}

// List handles GET /events/:id/threads.
func (h *Handler) List(c *gin.Context) {
	eventID, ok := idParam(c, "event")
	if !ok {
		return
	}
	list, err := h.svc.ListEventThreads(c.Request.Context(), auth.CurrentPrincipal(c), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /threads/:id.
func (h *Handler) Get(c *gin.Context) {
	threadID, ok := idParam(c, "thread")
	if !ok {
		return
	}
	t, err := h.svc.GetThread(c.Request.Context(), auth.CurrentPrincipal(c), threadID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// Messages handles GET /threads/:id/messages.
func (h *Handler) Messages(c *gin.Context) {
	threadID, ok := idParam(c, "thread")
	if !ok {
		return
	}
	list, err := h.svc.ListThreadMessages(c.Request.Context(), auth.CurrentPrincipal(c), threadID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Send handles POST /threads/:id/messages.
func (h *Handler) Send(c *gin.Context) {
	threadID, ok := idParam(c, "thread")
	if !ok {
		return
	}
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.SendThreadMessage(c.Request.Context(), auth.CurrentPrincipal(c), threadID, req.Content, req.AttachmentKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, m)
}

// Resolve handles POST /threads/:id/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	h.transition(c, h.svc.ResolveThread)
}

// Reopen handles POST /threads/:id/reopen.
func (h *Handler) Reopen(c *gin.Context) {
	h.transition(c, h.svc.ReopenThread)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, *auth.Principal, uuid.UUID) (*models.Thread, error)) {
	threadID, ok := idParam(c, "thread")
	if !ok {
		return
	}
	t, err := fn(c.Request.Context(), auth.CurrentPrincipal(c), threadID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, t)
}

// MarkRead handles POST /threads/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	h.transition(c, h.svc.MarkThreadAsRead)
}

// UploadURL handles POST /threads/:id/attachments/upload-url.
func (h *Handler) UploadURL(c *gin.Context) {
	if h.presigner == nil {
		response.ServiceUnavailable(c, "attachments are not configured")
		return
	}
	threadID, ok := idParam(c, "thread")
	if !ok {
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := storage.ValidateAttachment(req.ContentType, req.Size); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := h.svc.GetThread(c.Request.Context(), auth.CurrentPrincipal(c), threadID)
	if err != nil {
		response.Error(c, err)
		return
	}
	key := storage.AttachmentKey(AttachmentPrefix(t.EventID, t.ID), req.Filename)
	url, err := h.presigner.PresignUpload(c.Request.Context(), key, req.ContentType, req.Size)
	if err != nil {
		h.logger.Error("presign upload failed", zap.String("thread_id", t.ID.String()), zap.Error(err))
		response.Error(c, apperr.Backend(err))
		return
	}
	response.OK(c, gin.H{"upload_url": url, "attachment_key": key})
}

// Attachment handles GET /messages/:id/attachment.
func (h *Handler) Attachment(c *gin.Context) {
	if h.presigner == nil {
		response.ServiceUnavailable(c, "attachments are not configured")
		return
	}
	messageID, ok := idParam(c, "message")
	if !ok {
		return
	}
	m, err := h.svc.GetMessage(c.Request.Context(), auth.CurrentPrincipal(c), messageID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if m.AttachmentKey == "" {
		response.NotFound(c, "message has no attachment")
		return
	}
	url, err := h.presigner.PresignDownload(c.Request.Context(), m.AttachmentKey)
	if err != nil {
		h.logger.Error("presign download failed", zap.String("message_id", m.ID.String()), zap.Error(err))
		response.Error(c, apperr.Backend(err))
		return
	}
	response.OK(c, gin.H{"download_url": url})
}
