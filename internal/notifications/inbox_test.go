package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/realtime"
)

func TestInboxDeliversToOwnTopic(t *testing.T) {
	hub := realtime.NewHub(nil, nil)
	inbox := NewInbox(hub, hub)
	me := &auth.Principal{UserID: uuid.New()}

	got := make(chan string, 4)
	cancel, err := inbox.Listen(context.Background(), me, realtime.UserTopic(me.UserID), func(event string, _ interface{}) {
		got <- event
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.SubscriberCount(realtime.UserTopic(me.UserID)))

	require.NoError(t, inbox.Deliver(context.Background(), &models.NotificationLog{UserID: me.UserID, Kind: models.NotificationThreadMessage}))
	require.NoError(t, inbox.Deliver(context.Background(), &models.NotificationLog{UserID: uuid.New()}))

	select {
	case ev := <-got:
		assert.Equal(t, EventNotification, ev)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	assert.Empty(t, got)

	cancel()
	cancel()
	assert.Equal(t, 0, hub.SubscriberCount(realtime.UserTopic(me.UserID)))
}

func TestInboxListenRules(t *testing.T) {
	hub := realtime.NewHub(nil, nil)
	inbox := NewInbox(hub, hub)
	me := &auth.Principal{UserID: uuid.New()}
	noop := func(string, interface{}) {}

	_, err := inbox.Listen(context.Background(), me, realtime.UserTopic(uuid.New()), noop)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = inbox.Listen(context.Background(), me, realtime.EventTopic(me.UserID), noop)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = inbox.Listen(context.Background(), nil, realtime.UserTopic(me.UserID), noop)
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = NewInbox(hub, nil).Listen(context.Background(), me, realtime.UserTopic(me.UserID), noop)
	assert.ErrorIs(t, err, apperr.ErrBackendUnavailable)
}

func TestInboxStopsWithContext(t *testing.T) {
	hub := realtime.NewHub(nil, nil)
	inbox := NewInbox(hub, hub)
	me := &auth.Principal{UserID: uuid.New()}

	ctx, stop := context.WithCancel(context.Background())
	_, err := inbox.Listen(ctx, me, realtime.UserTopic(me.UserID), func(string, interface{}) {})
	require.NoError(t, err)
	stop()
	assert.Eventually(t, func() bool {
		return hub.SubscriberCount(realtime.UserTopic(me.UserID)) == 0
	}, time.Second, 10*time.Millisecond)
}
