package notifications

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/realtime"
)

// EventNotification is the realtime event carrying a delivered notification.
const EventNotification = "notification"

// Publisher pushes realtime updates.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload interface{}) error
}

// Subscriber registers realtime handlers.
type Subscriber interface {
	Subscribe(topic string, handler realtime.Handler) (cancel func())
}

// Inbox delivers notifications to the recipient's user topic and lets that user listen to it.
type Inbox struct {
	pub Publisher
	sub Subscriber
}

// NewInbox creates an inbox. sub may be nil in processes that only deliver.
func NewInbox(pub Publisher, sub Subscriber) *Inbox {
	return &Inbox{pub: pub, sub: sub}
}

// Deliver publishes l on its recipient's topic.
func (i *Inbox) Deliver(ctx context.Context, l *models.NotificationLog) error {
	return i.pub.Publish(ctx, realtime.UserTopic(l.UserID), EventNotification, l)
}

// Listen implements realtime.Listener for "user:<id>". Users may only listen to themselves.
func (i *Inbox) Listen(ctx context.Context, p *auth.Principal, topic string, deliver func(event string, data interface{})) (func(), error) {
	if p == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	if i.sub == nil {
		return nil, apperr.ErrBackendUnavailable
	}
	kind, id, err := realtime.ParseTopic(topic)
	if err != nil || kind != "user" {
		return nil, apperr.Invalid("not a user topic: %q", topic)
	}
	if id != p.UserID {
		return nil, apperr.ErrPermissionDenied
	}
	stop := i.sub.Subscribe(topic, func(event string, data json.RawMessage) {
		deliver(event, data)
	})
	var once sync.Once
	cancel := func() { once.Do(stop) }
	after := context.AfterFunc(ctx, cancel)
	return func() {
		after()
		cancel()
	}, nil
}
