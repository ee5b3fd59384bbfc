package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	eventTopicPrefix  = "event:"
	threadTopicPrefix = "thread:"
	userTopicPrefix   = "user:"
)

// EventTopic carries thread list updates for one event.
func EventTopic(eventID uuid.UUID) string { return eventTopicPrefix + eventID.String() }

// ThreadTopic carries new messages for one thread.
func ThreadTopic(threadID uuid.UUID) string { return threadTopicPrefix + threadID.String() }

// UserTopic carries notifications addressed to one user.
func UserTopic(userID uuid.UUID) string { return userTopicPrefix + userID.String() }

// ParseTopic splits a topic into its kind ("event", "thread" or "user") and id.
func ParseTopic(topic string) (kind string, id uuid.UUID, err error) {
	kind, raw, ok := strings.Cut(topic, ":")
	if !ok || (kind != "event" && kind != "thread" && kind != "user") {
		return "", uuid.Nil, fmt.Errorf("unknown topic %q", topic)
	}
	id, err = uuid.Parse(raw)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("topic %q: %w", topic, err)
	}
	return kind, id, nil
}

// Handler receives one published update.
type Handler func(event string, data json.RawMessage)

// Bridge carries updates between instances.
type Bridge interface {
	Publish(ctx context.Context, topic, event string, payload []byte) error
	Subscribe(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains topic -> local handlers. With a Bridge, publishes go through Redis and the
// per-topic Redis subscription performs the single local broadcast on every instance.
type Hub struct {
	topics map[string]map[uint64]Handler
	subs   map[string]func()
	nextID uint64
	mu     sync.RWMutex
	bridge Bridge
	logger *zap.Logger
}

// NewHub creates a hub. bridge may be nil for a single instance.
func NewHub(logger *zap.Logger, bridge Bridge) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics: make(map[string]map[uint64]Handler),
		subs:   make(map[string]func()),
		bridge: bridge,
		logger: logger,
	}
}

// Subscribe registers handler on topic. The returned cancel is safe to call more than once.
// The bridge subscription for a new topic is made outside the hub lock, so a slow Redis
// never stalls Broadcast or Publish on other topics.
func (h *Hub) Subscribe(topic string, handler Handler) (cancel func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	first := h.topics[topic] == nil
	if first {
		h.topics[topic] = make(map[uint64]Handler)
	}
	h.topics[topic][id] = handler
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Inc()
	h.logger.Debug("subscribed", zap.String("topic", topic))

	if first && h.bridge != nil {
		h.attachBridge(topic)
	}

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(topic, id) })
	}
}

// attachBridge subscribes topic on the bridge and keeps the subscription only while the
// topic still has local handlers and no other goroutine attached one first.
func (h *Hub) attachBridge(topic string) {
	stop, err := h.bridge.Subscribe(topic, func(event string, payload []byte) {
		h.Broadcast(topic, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis subscribe failed, local delivery only", zap.String("topic", topic), zap.Error(err))
		return
	}
	h.mu.Lock()
	_, live := h.topics[topic]
	_, attached := h.subs[topic]
	if live && !attached {
		h.subs[topic] = stop
		stop = nil
	}
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (h *Hub) unsubscribe(topic string, id uint64) {
	h.mu.Lock()
	if m, ok := h.topics[topic]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(h.topics, topic)
			if stop, ok := h.subs[topic]; ok {
				stop()
				delete(h.subs, topic)
			}
		}
	}
	h.mu.Unlock()
	metrics.RealtimeSubscribers.Dec()
	h.logger.Debug("unsubscribed", zap.String("topic", topic))
}

// Broadcast delivers to local handlers only.
func (h *Hub) Broadcast(topic, event string, data json.RawMessage) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.topics[topic]))
	for _, fn := range h.topics[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(event, data)
	}
}

// Publish sends an update to every subscriber of topic on every instance.
func (h *Hub) Publish(ctx context.Context, topic, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if h.bridge != nil {
		h.mu.RLock()
		_, bridged := h.subs[topic]
		h.mu.RUnlock()
		if err := h.bridge.Publish(ctx, topic, event, data); err != nil {
			return err
		}
		if bridged {
			return nil
		}
	}
	h.Broadcast(topic, event, data)
	return nil
}

// SubscriberCount returns the number of local handlers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
