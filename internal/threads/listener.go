package threads

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/realtime"
)

// threadSink forwards thread updates whose (LastMessageAt, Version) moves forward and drops
// the rest. Delivery happens under the lock so callbacks never interleave.
type threadSink struct {
	mu   sync.Mutex
	last map[uuid.UUID]threadMark
	fn   func(models.Thread)
}

type threadMark struct {
	at      time.Time
	version int64
}

func newThreadSink(fn func(models.Thread)) *threadSink {
	return &threadSink{last: make(map[uuid.UUID]threadMark), fn: fn}
}

func (s *threadSink) offer(t models.Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.last[t.ID]; ok {
		if t.LastMessageAt.Before(prev.at) || (t.LastMessageAt.Equal(prev.at) && t.Version <= prev.version) {
			return false
		}
	}
	s.last[t.ID] = threadMark{at: t.LastMessageAt, version: t.Version}
	s.fn(t)
	return true
}

// messageSink forwards each message once, in seq order. A message that arrives ahead of its
// predecessors is held, and the gap is read back from the store. Messages without a seq are
// only deduplicated by id and pass straight through.
type messageSink struct {
	mu      sync.Mutex
	last    int64
	pending map[int64]models.Message
	seen    map[uuid.UUID]struct{}
	refill  func(afterSeq int64) ([]models.Message, error)
	fn      func(models.Message)
	logger  *zap.Logger
}

func newMessageSink(fn func(models.Message), refill func(afterSeq int64) ([]models.Message, error), logger *zap.Logger) *messageSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &messageSink{
		pending: make(map[int64]models.Message),
		seen:    make(map[uuid.UUID]struct{}),
		refill:  refill,
		fn:      fn,
		logger:  logger,
	}
}

func (s *messageSink) offer(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Seq == 0 {
		if _, dup := s.seen[m.ID]; dup {
			return false
		}
		s.seen[m.ID] = struct{}{}
		s.fn(m)
		return true
	}
	if m.Seq <= s.last {
		return false
	}
	if _, held := s.pending[m.Seq]; held {
		return false
	}
	s.pending[m.Seq] = m
	if m.Seq > s.last+1 && s.refill != nil {
		s.fillGap()
	}
	for {
		next, ok := s.pending[s.last+1]
		if !ok {
			break
		}
		delete(s.pending, next.Seq)
		s.last = next.Seq
		s.fn(next)
	}
	return true
}

// fillGap loads what the store has after the last delivered message. On failure the held
// messages wait for the next offer to retry.
func (s *messageSink) fillGap() {
	missing, err := s.refill(s.last)
	if err != nil {
		s.logger.Warn("refill thread messages", zap.Int64("after_seq", s.last), zap.Error(err))
		return
	}
	for _, m := range missing {
		if _, held := s.pending[m.Seq]; !held && m.Seq > s.last {
			s.pending[m.Seq] = m
		}
	}
}

func onceCancel(ctx context.Context, cancels ...func()) func() {
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			for _, c := range cancels {
				c()
			}
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}
}

// ListenToEventThreads delivers the current threads of the event the actor may see, then
// every later update, until the returned cancel is called or ctx ends. Cancel is idempotent.
func (s *Service) ListenToEventThreads(ctx context.Context, actor *auth.Principal, eventID uuid.UUID, fn func(models.Thread)) (func(), error) {
	if s.subscriber == nil {
		return nil, apperr.ErrBackendUnavailable
	}
	_, role, err := s.role(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	oversees := role.OrganizerLevel()
	sink := newThreadSink(fn)

	unsubscribe := s.subscriber.Subscribe(realtime.EventTopic(eventID), func(event string, data json.RawMessage) {
		if event != EventThreadUpdated {
			return
		}
		var t models.Thread
		if err := json.Unmarshal(data, &t); err != nil {
			s.logger.Warn("invalid thread update", zap.String("event_id", eventID.String()), zap.Error(err))
			return
		}
		if t.EventID != eventID || (!oversees && !t.IsParticipant(actor.UserID)) {
			return
		}
		sink.offer(t)
	})

	current, err := s.store.ListEventThreads(ctx, eventID, participantFilter(actor, role))
	if err != nil {
		unsubscribe()
		return nil, err
	}
	for i := len(current) - 1; i >= 0; i-- {
		sink.offer(current[i])
	}
	return onceCancel(ctx, unsubscribe), nil
}

// ListenToThreadMessages delivers the thread's existing messages, then each new one, in seq
// order without gaps even when live updates arrive out of order. Cancel is idempotent.
func (s *Service) ListenToThreadMessages(ctx context.Context, actor *auth.Principal, threadID uuid.UUID, fn func(models.Message)) (func(), error) {
	if s.subscriber == nil {
		return nil, apperr.ErrBackendUnavailable
	}
	if _, _, err := s.readable(ctx, actor, threadID); err != nil {
		return nil, err
	}
	sink := newMessageSink(fn, func(afterSeq int64) ([]models.Message, error) {
		return s.store.ListMessagesAfter(ctx, threadID, afterSeq)
	}, s.logger.With(zap.String("thread_id", threadID.String())))

	// Buffer live messages until the backlog has been delivered.
	var (
		mu      sync.Mutex
		backlog = true
		pending []models.Message
	)
	unsubscribe := s.subscriber.Subscribe(realtime.ThreadTopic(threadID), func(event string, data json.RawMessage) {
		if event != EventMessageCreated {
			return
		}
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil || m.ThreadID != threadID {
			return
		}
		mu.Lock()
		if backlog {
			pending = append(pending, m)
			mu.Unlock()
			return
		}
		mu.Unlock()
		sink.offer(m)
	})

	existing, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	for _, m := range existing {
		sink.offer(m)
	}
	mu.Lock()
	for _, m := range pending {
		sink.offer(m)
	}
	backlog = false
	pending = nil
	mu.Unlock()
	return onceCancel(ctx, unsubscribe), nil
}

// Listen implements realtime.Listener for "event:<id>" and "thread:<id>" topics.
func (s *Service) Listen(ctx context.Context, p *auth.Principal, topic string, deliver func(event string, data interface{})) (func(), error) {
	kind, id, err := realtime.ParseTopic(topic)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	switch kind {
	case "event":
		return s.ListenToEventThreads(ctx, p, id, func(t models.Thread) { deliver(EventThreadUpdated, t) })
	case "thread":
		return s.ListenToThreadMessages(ctx, p, id, func(m models.Message) { deliver(EventMessageCreated, m) })
	}
	return nil, apperr.Invalid("topic %q is not a thread topic", topic)
}
