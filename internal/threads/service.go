// Package threads implements event message threads: recipients, the open/resolved state
// machine, unread counters and realtime listeners.
package threads

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/metrics"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/realtime"
	"github.com/eventdesk/backend/pkg/queue"
)

const (
	// EventThreadUpdated is published on the event topic with the full thread.
	EventThreadUpdated = "thread.updated"
	// EventMessageCreated is published on the thread topic with the new message.
	EventMessageCreated = "message.created"

	maxSubjectLen = 200
	maxContentLen = 10000
	previewLen    = 140
)

// Store is the thread persistence.
type Store interface {
	CreateThread(ctx context.Context, t *models.Thread, initial *models.Message) (*models.Thread, error)
	GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	AppendMessage(ctx context.Context, m *models.Message, blockResolved bool) (*models.Message, *models.Thread, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.ThreadStatus, by uuid.UUID, byName string, at time.Time) (*models.Thread, bool, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (*models.Thread, error)
	ListEventThreads(ctx context.Context, eventID uuid.UUID, participant *uuid.UUID) ([]models.Thread, error)
	ListMessages(ctx context.Context, threadID uuid.UUID) ([]models.Message, error)
	ListMessagesAfter(ctx context.Context, threadID uuid.UUID, afterSeq int64) ([]models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
}

// Resolver resolves the caller's role in an event.
type Resolver interface {
	Resolve(ctx context.Context, eventID, userID uuid.UUID, globalRole models.AccountRole) (*models.Event, models.EventRole, error)
}

// Publisher pushes updates to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload interface{}) error
}

// Subscriber registers realtime handlers.
type Subscriber interface {
	Subscribe(topic string, handler realtime.Handler) (cancel func())
}

// Notifier enqueues user notifications.
type Notifier interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Config holds thread policy.
type Config struct {
	// BlockResolvedReplies rejects messages on resolved threads with apperr.ErrThreadResolved.
	BlockResolvedReplies bool
}

// CreateInput describes a new thread.
type CreateInput struct {
	EventID       uuid.UUID
	Subject       string
	RecipientType models.RecipientType
	Recipients    []uuid.UUID
	Message       string
}

// Service implements thread messaging. notifier, publisher and subscriber may be nil.
type Service struct {
	store      Store
	resolver   Resolver
	publisher  Publisher
	subscriber Subscriber
	notifier   Notifier
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a thread service.
func NewService(store Store, resolver Resolver, publisher Publisher, subscriber Subscriber, notifier Notifier, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store: store, resolver: resolver, publisher: publisher, subscriber: subscriber,
		notifier: notifier, cfg: cfg, logger: logger, now: time.Now,
	}
}

// ResolveRecipients expands a recipient type against the event's current team. The result
// never contains the creator and has no duplicates. Explicit recipients must be on the team:
// the owner, an organizer, a volunteer or a sponsor.
func ResolveRecipients(event *models.Event, creator uuid.UUID, rt models.RecipientType, explicit []uuid.UUID) ([]uuid.UUID, error) {
	var pool []uuid.UUID
	switch rt {
	case models.RecipientSpecificUser:
		team := teamOf(event)
		for _, id := range explicit {
			if _, ok := team[id]; !ok && id != creator {
				return nil, apperr.Invalid("recipient %s is not on the event team", id)
			}
		}
		pool = explicit
	case models.RecipientAllOrganizers:
		pool = append([]uuid.UUID{event.CreatedBy}, event.Organizers...)
	case models.RecipientAllVolunteers:
		pool = event.Volunteers
	case models.RecipientOrganizerTeam:
		pool = append(append([]uuid.UUID{event.CreatedBy}, event.Organizers...), event.Volunteers...)
	default:
		return nil, apperr.Invalid("unknown recipient type %q", rt)
	}
	out := make([]uuid.UUID, 0, len(pool))
	seen := map[uuid.UUID]struct{}{creator: {}}
	for _, id := range pool {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, apperr.Invalid("thread has no recipients")
	}
	return out, nil
}

func teamOf(event *models.Event) map[uuid.UUID]struct{} {
	team := map[uuid.UUID]struct{}{event.CreatedBy: {}}
	for _, group := range [][]uuid.UUID{event.Organizers, event.Volunteers, event.Sponsors} {
		for _, id := range group {
			team[id] = struct{}{}
		}
	}
	return team
}

func (s *Service) role(ctx context.Context, actor *auth.Principal, eventID uuid.UUID) (*models.Event, models.EventRole, error) {
	if actor == nil {
		return nil, "", apperr.ErrNotAuthenticated
	}
	return s.resolver.Resolve(ctx, eventID, actor.UserID, actor.Role)
}

// readable loads a thread the actor may see. Threads the actor neither takes part in nor
// oversees are reported as not found.
func (s *Service) readable(ctx context.Context, actor *auth.Principal, threadID uuid.UUID) (*models.Thread, models.EventRole, error) {
	if actor == nil {
		return nil, "", apperr.ErrNotAuthenticated
	}
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, "", err
	}
	_, role, err := s.role(ctx, actor, t.EventID)
	if err != nil {
		return nil, "", err
	}
	if !t.IsParticipant(actor.UserID) && !role.OrganizerLevel() {
		return nil, "", apperr.ErrNotFound
	}
	return t, role, nil
}

// CreateMessageThread opens a thread. Broadcast recipient types are expanded once, here, and
// the resulting ids are stored.
func (s *Service) CreateMessageThread(ctx context.Context, actor *auth.Principal, in CreateInput) (*models.Thread, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if in.Subject == "" || utf8.RuneCountInString(in.Subject) > maxSubjectLen {
		return nil, apperr.Invalid("subject must be 1-%d characters", maxSubjectLen)
	}
	if utf8.RuneCountInString(in.Message) > maxContentLen {
		return nil, apperr.Invalid("message too long")
	}
	event, role, err := s.role(ctx, actor, in.EventID)
	if err != nil {
		return nil, err
	}
	if !access.HasEventPermission(role, access.EventSendMessages) {
		return nil, apperr.ErrPermissionDenied
	}
	if event == nil {
		return nil, apperr.ErrBackendUnavailable
	}
	recipients, err := ResolveRecipients(event, actor.UserID, in.RecipientType, in.Recipients)
	if err != nil {
		return nil, err
	}

	initialUnread := 0
	var initial *models.Message
	if in.Message != "" {
		initialUnread = 1
		initial = &models.Message{SenderID: actor.UserID, SenderName: actor.Name, Content: in.Message}
	}
	unread := map[uuid.UUID]int{actor.UserID: 0}
	for _, id := range recipients {
		unread[id] = initialUnread
	}
	t, err := s.store.CreateThread(ctx, &models.Thread{
		EventID:       in.EventID,
		Subject:       in.Subject,
		CreatedBy:     actor.UserID,
		CreatedByName: actor.Name,
		CreatorRole:   role,
		RecipientType: in.RecipientType,
		Recipients:    recipients,
		Status:        models.ThreadOpen,
		UnreadCount:   unread,
	}, initial)
	if err != nil {
		return nil, err
	}

	metrics.ThreadTransitions.WithLabelValues("created").Inc()
	s.logger.Info("thread created",
		zap.String("thread_id", t.ID.String()), zap.String("event_id", t.EventID.String()),
		zap.String("recipient_type", string(t.RecipientType)), zap.Int("recipients", len(t.Recipients)))
	s.publishThread(ctx, t)
	for _, id := range t.Recipients {
		s.notify(ctx, queue.NotificationPayload{
			Kind: models.NotificationThreadCreated, EventID: t.EventID, ThreadID: &t.ID,
			UserID: id, ActorID: actor.UserID, Subject: t.Subject, Preview: preview(in.Message),
		})
	}
	return t, nil
}

// SendThreadMessage appends a message. Participants and organizer-level roles may reply.
func (s *Service) SendThreadMessage(ctx context.Context, actor *auth.Principal, threadID uuid.UUID, content, attachmentKey string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && attachmentKey == "" {
		return nil, apperr.Invalid("message content required")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return nil, apperr.Invalid("message too long")
	}
	t, _, err := s.readable(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	if attachmentKey != "" && !strings.HasPrefix(attachmentKey, AttachmentPrefix(t.EventID, t.ID)) {
		return nil, apperr.Invalid("attachment does not belong to this thread")
	}
	if s.cfg.BlockResolvedReplies && t.Status == models.ThreadResolved {
		return nil, apperr.ErrThreadResolved
	}

	msg, updated, err := s.store.AppendMessage(ctx, &models.Message{
		ThreadID: t.ID, EventID: t.EventID, SenderID: actor.UserID, SenderName: actor.Name,
		Content: content, AttachmentKey: attachmentKey,
	}, s.cfg.BlockResolvedReplies)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("thread message sent", zap.String("thread_id", t.ID.String()), zap.String("message_id", msg.ID.String()))
	s.publish(ctx, realtime.ThreadTopic(t.ID), EventMessageCreated, msg)
	s.publishThread(ctx, updated)
	for _, id := range updated.Participants() {
		if id == actor.UserID {
			continue
		}
		s.notify(ctx, queue.NotificationPayload{
			Kind: models.NotificationThreadMessage, EventID: t.EventID, ThreadID: &t.ID,
			UserID: id, ActorID: actor.UserID, Subject: t.Subject, Preview: preview(content),
		})
	}
	return msg, nil
}

func (s *Service) transition(ctx context.Context, actor *auth.Principal, threadID uuid.UUID, to models.ThreadStatus) (*models.Thread, error) {
	if actor == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	t, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.CreatedBy != actor.UserID {
		_, role, err := s.role(ctx, actor, t.EventID)
		if err != nil {
			return nil, err
		}
		if !access.HasEventPermission(role, access.EventResolveThreads) {
			return nil, apperr.ErrPermissionDenied
		}
	}
	updated, changed, err := s.store.SetStatus(ctx, threadID, to, actor.UserID, actor.Name, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if changed {
		kind := "resolved"
		if to == models.ThreadOpen {
			kind = "reopened"
		}
		metrics.ThreadTransitions.WithLabelValues(kind).Inc()
		s.logger.Info("thread "+kind, zap.String("thread_id", threadID.String()), zap.String("actor_id", actor.UserID.String()))
		s.publishThread(ctx, updated)
	}
	return updated, nil
}

// ResolveThread moves an open thread to resolved. The creator and roles holding
// RESOLVE_THREADS may do this; resolving a resolved thread is a no-op.
func (s *Service) ResolveThread(ctx context.Context, actor *auth.Principal, threadID uuid.UUID) (*models.Thread, error) {
	return s.transition(ctx, actor, threadID, models.ThreadResolved)
}

// ReopenThread moves a resolved thread back to open under the same rule as ResolveThread.
func (s *Service) ReopenThread(ctx context.Context, actor *auth.Principal, threadID uuid.UUID) (*models.Thread, error) {
	return s.transition(ctx, actor, threadID, models.ThreadOpen)
}

// MarkThreadAsRead zeroes the actor's unread counter.
func (s *Service) MarkThreadAsRead(ctx context.Context, actor *auth.Principal, threadID uuid.UUID) (*models.Thread, error) {
	if _, _, err := s.readable(ctx, actor, threadID); err != nil {
		return nil, err
	}
	t, err := s.store.MarkRead(ctx, threadID, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.publishThread(ctx, t)
	return t, nil
}

// GetThread returns a thread the actor may read.
func (s *Service) GetThread(ctx context.Context, actor *auth.Principal, threadID uuid.UUID) (*models.Thread, error) {
	t, _, err := s.readable(ctx, actor, threadID)
	return t, err
}

// ListEventThreads returns the threads the actor takes part in; organizer-level roles see all.
func (s *Service) ListEventThreads(ctx context.Context, actor *auth.Principal, eventID uuid.UUID) ([]models.Thread, error) {
	_, role, err := s.role(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	return s.store.ListEventThreads(ctx, eventID, participantFilter(actor, role))
}

// ListThreadMessages returns a readable thread's messages oldest first.
func (s *Service) ListThreadMessages(ctx context.Context, actor *auth.Principal, threadID uuid.UUID) ([]models.Message, error) {
	if _, _, err := s.readable(ctx, actor, threadID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, threadID)
}

// GetMessage returns a message from a thread the actor may read.
func (s *Service) GetMessage(ctx context.Context, actor *auth.Principal, messageID uuid.UUID) (*models.Message, error) {
	if actor == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	m, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.readable(ctx, actor, m.ThreadID); err != nil {
		return nil, err
	}
	return m, nil
}

// AttachmentPrefix is the object key prefix for files attached to a thread.
func AttachmentPrefix(eventID, threadID uuid.UUID) string {
	return "attachments/" + eventID.String() + "/" + threadID.String() + "/"
}

func participantFilter(actor *auth.Principal, role models.EventRole) *uuid.UUID {
	if role.OrganizerLevel() {
		return nil
	}
	id := actor.UserID
	return &id
}

func (s *Service) publishThread(ctx context.Context, t *models.Thread) {
	s.publish(ctx, realtime.EventTopic(t.EventID), EventThreadUpdated, t)
}

func (s *Service) publish(ctx context.Context, topic, event string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, event, payload); err != nil {
		s.logger.Warn("realtime publish failed", zap.String("topic", topic), zap.String("event", event), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, payload queue.NotificationPayload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnqueueNotification(ctx, payload); err != nil {
		s.logger.Warn("enqueue notification failed",
			zap.String("kind", payload.Kind), zap.String("user_id", payload.UserID.String()), zap.Error(err))
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLen {
		return content
	}
	r := []rune(content)
	return string(r[:previewLen]) + "…"
}
