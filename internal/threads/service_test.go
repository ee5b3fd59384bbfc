package threads

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/internal/realtime"
	"github.com/eventdesk/backend/pkg/queue"
)

// memThreads mirrors the SQL repository, with a clock that advances one second per write.
type memThreads struct {
	mu       sync.Mutex
	clock    time.Time
	threads  map[uuid.UUID]*models.Thread
	messages map[uuid.UUID][]models.Message
}

func newMemThreads() *memThreads {
	return &memThreads{
		clock:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		threads:  map[uuid.UUID]*models.Thread{},
		messages: map[uuid.UUID][]models.Message{},
	}
}

func (m *memThreads) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func cloneThread(t *models.Thread) *models.Thread {
	cp := *t
	cp.Recipients = append([]uuid.UUID{}, t.Recipients...)
	cp.UnreadCount = make(map[uuid.UUID]int, len(t.UnreadCount))
	for k, v := range t.UnreadCount {
		cp.UnreadCount[k] = v
	}
	if t.ResolvedBy != nil {
		id := *t.ResolvedBy
		cp.ResolvedBy = &id
	}
	return &cp
}

func (m *memThreads) CreateThread(_ context.Context, t *models.Thread, initial *models.Message) (*models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	stored := cloneThread(t)
	stored.ID = uuid.New()
	stored.Status = models.ThreadOpen
	stored.CreatedAt, stored.LastMessageAt, stored.Version = now, now, 1
	m.threads[stored.ID] = stored
	if initial != nil {
		msg := *initial
		msg.ID, msg.ThreadID, msg.EventID, msg.Seq, msg.CreatedAt = uuid.New(), stored.ID, stored.EventID, 1, now
		m.messages[stored.ID] = append(m.messages[stored.ID], msg)
	}
	return cloneThread(stored), nil
}

func (m *memThreads) GetThread(_ context.Context, id uuid.UUID) (*models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return cloneThread(t), nil
}

func (m *memThreads) AppendMessage(_ context.Context, msg *models.Message, blockResolved bool) (*models.Message, *models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[msg.ThreadID]
	if !ok {
		return nil, nil, apperr.ErrNotFound
	}
	if blockResolved && t.Status == models.ThreadResolved {
		return nil, nil, apperr.ErrThreadResolved
	}
	stored := *msg
	stored.ID, stored.CreatedAt = uuid.New(), m.tick()
	stored.Seq = int64(len(m.messages[t.ID]) + 1)
	m.messages[t.ID] = append(m.messages[t.ID], stored)
	t.LastMessageAt = stored.CreatedAt
	t.Version++
	for _, p := range t.Participants() {
		if p != msg.SenderID {
			t.UnreadCount[p]++
		}
	}
	return &stored, cloneThread(t), nil
}

func (m *memThreads) SetStatus(_ context.Context, id uuid.UUID, status models.ThreadStatus, by uuid.UUID, byName string, at time.Time) (*models.Thread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, false, apperr.ErrNotFound
	}
	if t.Status == status {
		return cloneThread(t), false, nil
	}
	t.Status = status
	if status == models.ThreadResolved {
		t.ResolvedBy, t.ResolvedByName, t.ResolvedAt = &by, byName, &at
	} else {
		t.ResolvedBy, t.ResolvedByName, t.ResolvedAt = nil, "", nil
	}
	t.Version++
	return cloneThread(t), true, nil
}

func (m *memThreads) MarkRead(_ context.Context, id, userID uuid.UUID) (*models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	t.UnreadCount[userID] = 0
	t.Version++
	return cloneThread(t), nil
}

func (m *memThreads) ListEventThreads(_ context.Context, eventID uuid.UUID, participant *uuid.UUID) ([]models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Thread{}
	for _, t := range m.threads {
		if t.EventID != eventID || (participant != nil && !t.IsParticipant(*participant)) {
			continue
		}
		out = append(out, *cloneThread(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (m *memThreads) ListMessages(_ context.Context, threadID uuid.UUID) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message{}, m.messages[threadID]...), nil
}

func (m *memThreads) ListMessagesAfter(_ context.Context, threadID uuid.UUID, afterSeq int64) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for _, msg := range m.messages[threadID] {
		if msg.Seq > afterSeq {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memThreads) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.messages {
		for _, msg := range list {
			if msg.ID == id {
				cp := msg
				return &cp, nil
			}
		}
	}
	return nil, apperr.ErrNotFound
}

type roleKey struct{ event, user uuid.UUID }

// stubResolver follows the evaluator's order: owner, stored role, admin, viewer.
type stubResolver struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	roles  map[roleKey]models.EventRole
}

func (r *stubResolver) Resolve(_ context.Context, eventID, userID uuid.UUID, global models.AccountRole) (*models.Event, models.EventRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return nil, "", apperr.ErrNotFound
	}
	cp := *e
	switch {
	case e.CreatedBy == userID:
		return &cp, models.EventOwner, nil
	case r.roles[roleKey{eventID, userID}] != "":
		return &cp, r.roles[roleKey{eventID, userID}], nil
	case global == models.AccountAdmin:
		return &cp, models.EventAdmin, nil
	}
	return &cp, models.EventViewer, nil
}

func (r *stubResolver) setVolunteers(eventID uuid.UUID, ids ...uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventID].Volunteers = ids
	for k, role := range r.roles {
		if k.event == eventID && role == models.EventVolunteer {
			delete(r.roles, k)
		}
	}
	for _, id := range ids {
		r.roles[roleKey{eventID, id}] = models.EventVolunteer
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []queue.NotificationPayload
}

func (n *recordingNotifier) EnqueueNotification(_ context.Context, p queue.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, p)
	return nil
}

func (n *recordingNotifier) recipients(kind string) []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []uuid.UUID
	for _, j := range n.jobs {
		if j.Kind == kind {
			out = append(out, j.UserID)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *memThreads
	resolver *stubResolver
	hub      *realtime.Hub
	notifier *recordingNotifier
	event    *models.Event

	owner, organizer, v1, v2, sponsor, outsider, admin *auth.Principal
}

func person(name string, role models.AccountRole) *auth.Principal {
	return &auth.Principal{UserID: uuid.New(), Name: name, Role: role}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemThreads(),
		hub:       realtime.NewHub(nil, nil),
		notifier:  &recordingNotifier{},
		owner:     person("Olivia", models.AccountOrganizer),
		organizer: person("Omar", models.AccountOrganizer),
		v1:        person("Vera", models.AccountVolunteer),
		v2:        person("Victor", models.AccountVolunteer),
		sponsor:   person("Sam", models.AccountSponsor),
		outsider:  person("Xena", models.AccountAttendee),
		admin:     person("Ada", models.AccountAdmin),
	}
	f.event = &models.Event{
		ID:         uuid.New(),
		Title:      "Harbour Fest",
		CreatedBy:  f.owner.UserID,
		Organizers: []uuid.UUID{f.organizer.UserID},
		Volunteers: []uuid.UUID{f.v1.UserID, f.v2.UserID},
		Sponsors:   []uuid.UUID{f.sponsor.UserID},
		Visibility: models.VisibilityPrivate,
	}
	f.resolver = &stubResolver{
		events: map[uuid.UUID]*models.Event{f.event.ID: f.event},
		roles: map[roleKey]models.EventRole{
			{f.event.ID, f.organizer.UserID}: models.EventOrganizer,
			{f.event.ID, f.v1.UserID}:        models.EventVolunteer,
			{f.event.ID, f.v2.UserID}:        models.EventVolunteer,
			{f.event.ID, f.sponsor.UserID}:   models.EventSponsor,
		},
	}
	f.svc = NewService(f.store, f.resolver, f.hub, f.hub, f.notifier, cfg, nil)
	return f
}

func (f *fixture) create(t *testing.T, actor *auth.Principal, rt models.RecipientType, msg string, recipients ...uuid.UUID) *models.Thread {
	t.Helper()
	th, err := f.svc.CreateMessageThread(context.Background(), actor, CreateInput{
		EventID: f.event.ID, Subject: "Setup Help", RecipientType: rt, Recipients: recipients, Message: msg,
	})
	require.NoError(t, err)
	return th
}

func TestResolveRecipients(t *testing.T) {
	owner, org, v1, v2, sp := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	event := &models.Event{CreatedBy: owner, Organizers: []uuid.UUID{org}, Volunteers: []uuid.UUID{v1, v2, v1}, Sponsors: []uuid.UUID{sp}}

	tests := []struct {
		name    string
		creator uuid.UUID
		rt      models.RecipientType
		list    []uuid.UUID
		want    []uuid.UUID
		wantErr bool
	}{
		{"organizers include owner", v1, models.RecipientAllOrganizers, nil, []uuid.UUID{owner, org}, false},
		{"volunteers deduped", owner, models.RecipientAllVolunteers, nil, []uuid.UUID{v1, v2}, false},
		{"team excludes creator", org, models.RecipientOrganizerTeam, nil, []uuid.UUID{owner, v1, v2}, false},
		{"specific keeps order", owner, models.RecipientSpecificUser, []uuid.UUID{v2, v1, v2}, []uuid.UUID{v2, v1}, false},
		{"specific to self only", owner, models.RecipientSpecificUser, []uuid.UUID{owner}, nil, true},
		{"specific sponsor and owner", v1, models.RecipientSpecificUser, []uuid.UUID{sp, owner}, []uuid.UUID{sp, owner}, false},
		{"specific outsider rejected", owner, models.RecipientSpecificUser, []uuid.UUID{v1, uuid.New()}, nil, true},
		{"specific nil id rejected", owner, models.RecipientSpecificUser, []uuid.UUID{uuid.Nil}, nil, true},
		{"empty broadcast", owner, models.RecipientAllVolunteers, nil, nil, true},
		{"unknown type", owner, "EVERYONE", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := event
			if tt.name == "empty broadcast" {
				e = &models.Event{CreatedBy: owner}
			}
			got, err := ResolveRecipients(e, tt.creator, tt.rt, tt.list)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateThreadRejectsRecipientOutsideTeam(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.CreateMessageThread(context.Background(), f.organizer, CreateInput{
		EventID: f.event.ID, Subject: "Badge pickup", RecipientType: models.RecipientSpecificUser,
		Recipients: []uuid.UUID{f.v1.UserID, f.outsider.UserID}, Message: "see you at the desk",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Empty(t, f.store.threads)
	assert.Empty(t, f.notifier.jobs)
}

func TestSetupHelpScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	th, err := f.svc.CreateMessageThread(ctx, f.organizer, CreateInput{
		EventID: f.event.ID, Subject: "Setup Help", RecipientType: models.RecipientAllVolunteers,
		Message: "Need 2 more hands at 8am",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ThreadOpen, th.Status)
	assert.Equal(t, models.EventOrganizer, th.CreatorRole)
	assert.Equal(t, []uuid.UUID{f.v1.UserID, f.v2.UserID}, th.Recipients)
	assert.Equal(t, 0, th.UnreadCount[f.organizer.UserID])
	assert.Equal(t, 1, th.UnreadCount[f.v1.UserID])
	assert.Equal(t, 1, th.UnreadCount[f.v2.UserID])

	_, err = f.svc.SendThreadMessage(ctx, f.v1, th.ID, "On my way", "")
	require.NoError(t, err)

	after, err := f.svc.GetThread(ctx, f.organizer, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.UnreadCount[f.organizer.UserID])
	assert.Equal(t, 1, after.UnreadCount[f.v1.UserID], "sender's own counter is untouched")
	assert.Equal(t, 2, after.UnreadCount[f.v2.UserID])
	assert.True(t, after.LastMessageAt.After(th.LastMessageAt))

	resolved, err := f.svc.ResolveThread(ctx, f.organizer, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, f.organizer.UserID, *resolved.ResolvedBy)

	msgs, err := f.svc.ListThreadMessages(ctx, f.v2, th.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Need 2 more hands at 8am", msgs[0].Content)
	assert.Equal(t, "On my way", msgs[1].Content)

	assert.ElementsMatch(t, []uuid.UUID{f.v1.UserID, f.v2.UserID}, f.notifier.recipients(models.NotificationThreadCreated))
	assert.ElementsMatch(t, []uuid.UUID{f.organizer.UserID, f.v2.UserID}, f.notifier.recipients(models.NotificationThreadMessage))
}

func TestCreateWithoutMessageLeavesUnreadAtZero(t *testing.T) {
	f := newFixture(t, Config{})
	th := f.create(t, f.owner, models.RecipientAllOrganizers, "")
	assert.Equal(t, []uuid.UUID{f.organizer.UserID}, th.Recipients)
	assert.Equal(t, map[uuid.UUID]int{f.owner.UserID: 0, f.organizer.UserID: 0}, th.UnreadCount)
}

func TestCreateRequiresSendMessages(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.CreateMessageThread(context.Background(), f.outsider, CreateInput{
		EventID: f.event.ID, Subject: "Hi", RecipientType: models.RecipientAllOrganizers,
	})
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = f.svc.CreateMessageThread(context.Background(), nil, CreateInput{
		EventID: f.event.ID, Subject: "Hi", RecipientType: models.RecipientAllOrganizers,
	})
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = f.svc.CreateMessageThread(context.Background(), f.owner, CreateInput{
		EventID: uuid.New(), Subject: "Hi", RecipientType: models.RecipientAllOrganizers,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateMessageThread(context.Background(), f.owner, CreateInput{
		EventID: f.event.ID, Subject: "   ", RecipientType: models.RecipientAllOrganizers,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestBroadcastRecipientsAreASnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	th := f.create(t, f.owner, models.RecipientAllVolunteers, "Shift plan attached")

	newcomer := person("Nia", models.AccountVolunteer)
	f.resolver.setVolunteers(f.event.ID, f.v2.UserID, newcomer.UserID)

	got, err := f.svc.GetThread(ctx, f.owner, th.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.v1.UserID, f.v2.UserID}, got.Recipients)

	_, err = f.svc.GetThread(ctx, newcomer, th.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.SendThreadMessage(ctx, f.owner, th.ID, "Reminder", "")
	require.NoError(t, err)
	got, err = f.svc.GetThread(ctx, f.owner, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCount[f.v1.UserID], "removed volunteer still receives the snapshot thread")
	_, present := got.UnreadCount[newcomer.UserID]
	assert.False(t, present)
}

func TestResolveReopenRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	th := f.create(t, f.v1, models.RecipientAllOrganizers, "Out of zip ties")
	before, err := f.svc.ListThreadMessages(ctx, f.v1, th.ID)
	require.NoError(t, err)

	resolved, err := f.svc.ResolveThread(ctx, f.v1, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadResolved, resolved.Status)

	again, err := f.svc.ResolveThread(ctx, f.organizer, th.ID)
	require.NoError(t, err)
	assert.Equal(t, resolved.Version, again.Version, "resolving a resolved thread is a no-op")

	reopened, err := f.svc.ReopenThread(ctx, f.owner, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadOpen, reopened.Status)
	assert.Equal(t, th.ID, reopened.ID)
	assert.Equal(t, th.Recipients, reopened.Recipients)
	assert.Equal(t, th.Subject, reopened.Subject)
	assert.Nil(t, reopened.ResolvedBy)
	assert.Nil(t, reopened.ResolvedAt)

	after, err := f.svc.ListThreadMessages(ctx, f.v1, th.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResolveDeniedLeavesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	th := f.create(t, f.owner, models.RecipientOrganizerTeam, "Load-in at 6")

	for _, actor := range []*auth.Principal{f.v1, f.sponsor, f.outsider} {
		_, err := f.svc.ResolveThread(ctx, actor, th.ID)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied, actor.Name)
	}
	got, err := f.svc.GetThread(ctx, f.owner, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadOpen, got.Status)

	_, err = f.svc.ResolveThread(ctx, f.admin, th.ID)
	require.NoError(t, err)
	_, err = f.svc.ReopenThread(ctx, f.v2, th.ID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	got, err = f.svc.GetThread(ctx, f.owner, th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadResolved, got.Status)

	_, err = f.svc.ResolveThread(ctx, f.owner, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRepliesToResolvedThreads(t *testing.T) {
	ctx := context.Background()

	t.Run("accepted by default", func(t *testing.T) {
		f := newFixture(t, Config{})
		th := f.create(t, f.owner, models.RecipientAllVolunteers, "Done?")
		_, err := f.svc.ResolveThread(ctx, f.owner, th.ID)
		require.NoError(t, err)
		_, err = f.svc.SendThreadMessage(ctx, f.v1, th.ID, "One more thing", "")
		assert.NoError(t, err)
	})

	t.Run("blocked when configured", func(t *testing.T) {
		f := newFixture(t, Config{BlockResolvedReplies: true})
		th := f.create(t, f.owner, models.RecipientAllVolunteers, "Done?")
		_, err := f.svc.ResolveThread(ctx, f.owner, th.ID)
		require.NoError(t, err)
		_, err = f.svc.SendThreadMessage(ctx, f.v1, th.ID, "One more thing", "")
		assert.ErrorIs(t, err, apperr.ErrThreadResolved)

		msgs, err := f.svc.ListThreadMessages(ctx, f.owner, th.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 1)
	})
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	th := f.create(t, f.owner, models.RecipientAllVolunteers, "")

	_, err := f.svc.SendThreadMessage(ctx, f.v1, th.ID, "  ", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.svc.SendThreadMessage(ctx, f.v1, th.ID, "see file", "attachments/other/thread/x.pdf")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	m, err := f.svc.SendThreadMessage(ctx, f.v1, th.ID, "", AttachmentPrefix(f.event.ID, th.ID)+"abc-map.pdf")
	require.NoError(t, err)
	got, err := f.svc.GetMessage(ctx, f.owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.AttachmentKey, got.AttachmentKey)

	_, err = f.svc.SendThreadMessage(ctx, f.sponsor, th.ID, "hello", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "non-participants do not learn the thread exists")
	_, err = f.svc.GetMessage(ctx, f.sponsor, m.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkThreadAsRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	th := f.create(t, f.owner, models.RecipientAllVolunteers, "Badges are in")

	got, err := f.svc.MarkThreadAsRead(ctx, f.v1, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount[f.v1.UserID])
	assert.Equal(t, 1, got.UnreadCount[f.v2.UserID])
	assert.Equal(t, models.ThreadOpen, got.Status)

	_, err = f.svc.MarkThreadAsRead(ctx, f.sponsor, th.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListEventThreadsFiltersByParticipation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	vol := f.create(t, f.owner, models.RecipientAllVolunteers, "vol")
	orgs := f.create(t, f.v1, models.RecipientAllOrganizers, "org")
	direct := f.create(t, f.owner, models.RecipientSpecificUser, "sponsor", f.sponsor.UserID)

	ids := func(list []models.Thread) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(list))
		for _, th := range list {
			out = append(out, th.ID)
		}
		return out
	}

	all, err := f.svc.ListEventThreads(ctx, f.organizer, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{direct.ID, orgs.ID, vol.ID}, ids(all))

	mine, err := f.svc.ListEventThreads(ctx, f.v2, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{vol.ID}, ids(mine))

	sponsor, err := f.svc.ListEventThreads(ctx, f.sponsor, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{direct.ID}, ids(sponsor))

	admin, err := f.svc.ListEventThreads(ctx, f.admin, f.event.ID)
	require.NoError(t, err)
	assert.Len(t, admin, 3)
}
