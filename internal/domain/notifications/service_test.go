package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/platform/realtime"
)

type fakeStore struct {
	users     map[string]Recipient
	overrides map[string]map[string]Preference
	items     []Notification
	failFor   string
}

func newFakeStore(users ...Recipient) *fakeStore {
	f := &fakeStore{users: map[string]Recipient{}, overrides: map[string]map[string]Preference{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeStore) Recipients(_ context.Context, ids []string) ([]Recipient, error) {
	var out []Recipient
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) UserIDsByRole(_ context.Context, role string) ([]string, error) {
	var out []string
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

func (f *fakeStore) UserRole(_ context.Context, id string) (string, error) {
	return f.users[id].Role, nil
}

func (f *fakeStore) PreferenceOverrides(_ context.Context, ids []string, ntype string) (map[string]Preference, error) {
	out := map[string]Preference{}
	for _, id := range ids {
		if pref, ok := f.overrides[id][ntype]; ok {
			out[id] = pref
		}
	}
	return out, nil
}

func (f *fakeStore) UserPreferences(_ context.Context, id string) (map[string]Preference, error) {
	return f.overrides[id], nil
}

func (f *fakeStore) UpsertPreferences(_ context.Context, id string, prefs map[string]Preference) error {
	if f.overrides[id] == nil {
		f.overrides[id] = map[string]Preference{}
	}
	for k, v := range prefs {
		f.overrides[id][k] = v
	}
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n Notification) (Notification, error) {
	if n.UserID == f.failFor {
		return n, errors.New("insert failed")
	}
	n.ID = n.UserID + "-" + n.Type
	n.CreatedAt = time.Now()
	f.items = append(f.items, n)
	return n, nil
}

func (f *fakeStore) ListNotifications(_ context.Context, id string, unread bool, _, _ int) ([]Notification, error) {
	var out []Notification
	for _, n := range f.items {
		if n.UserID == id && (!unread || n.ReadAt == nil) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) CountNotifications(ctx context.Context, id string, unread bool) (int, error) {
	items, _ := f.ListNotifications(ctx, id, unread, 0, 0)
	return len(items), nil
}

func (f *fakeStore) MarkRead(_ context.Context, userID, id string) error {
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].UserID == userID {
			now := time.Now()
			f.items[i].ReadAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	var n int64
	for i := range f.items {
		if f.items[i].UserID == userID && f.items[i].ReadAt == nil {
			now := time.Now()
			f.items[i].ReadAt = &now
			n++
		}
	}
	return n, nil
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, _, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakePublisher struct {
	published map[string]int
}

func (p *fakePublisher) Publish(userID string, _ realtime.Message) int {
	if p.published == nil {
		p.published = map[string]int{}
	}
	p.published[userID]++
	return 1
}

func TestResolveOrder(t *testing.T) {
	defaults := BuiltinDefaults()
	defaults.Set("pm", AnyType, Preference{InApp: false, Email: true})

	assert.Equal(t, GlobalDefault, defaults.Resolve("admin", TypeTaskAssigned, nil))
	assert.Equal(t, Preference{InApp: true, Email: true}, defaults.Resolve("hr", TypeWorkRequestPendingHR, nil))
	assert.Equal(t, Preference{InApp: true, Email: true}, defaults.Resolve("pm", TypeTaskCompleted, nil), "exact type wins over wildcard")
	assert.Equal(t, Preference{InApp: false, Email: true}, defaults.Resolve("pm", TypeEventInvite, nil))

	override := Preference{InApp: false, Email: false}
	assert.Equal(t, override, defaults.Resolve("hr", TypeWorkRequestPendingHR, &override))
}

func TestNotifyRoutesChannelsByPreference(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(
		Recipient{ID: "hr1", Email: "hr1@example.com", Role: "hr"},
		Recipient{ID: "emp1", Email: "emp1@example.com", Role: "employee"},
		Recipient{ID: "hr2", Email: "hr2@example.com", Role: "hr"},
	)
	store.overrides["hr2"] = map[string]Preference{TypeWorkRequestPendingHR: {InApp: false, Email: false}}
	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	svc := New(store, mailer)
	svc.Publisher = publisher
	svc.PublicURL = "https://wf.example.com/"

	require.NoError(t, svc.Notify(ctx, []string{"hr1", "emp1", "hr2", "hr1", ""}, TypeWorkRequestPendingHR, "Leave awaiting HR", "Ann requested leave", "/work-requests/1"))

	require.Len(t, store.items, 2)
	assert.Equal(t, 1, publisher.published["hr1"])
	assert.Equal(t, 1, publisher.published["emp1"])
	assert.Zero(t, publisher.published["hr2"])

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "hr1@example.com", mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].body, "https://wf.example.com/work-requests/1")
}

func TestNotifyRoleAndEmailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(
		Recipient{ID: "hr1", Email: "hr1@example.com", Role: "hr"},
		Recipient{ID: "pm1", Email: "pm1@example.com", Role: "pm"},
	)
	svc := New(store, &fakeMailer{err: errors.New("smtp down")})

	require.NoError(t, svc.NotifyRole(ctx, "hr", TypeResourceRequestPendingHR, "Pending", "", ""))
	require.Len(t, store.items, 1)
	assert.Equal(t, "hr1", store.items[0].UserID)
}

func TestNotifyCollectsInAppErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(Recipient{ID: "a", Role: "employee"}, Recipient{ID: "b", Role: "employee"})
	store.failFor = "a"
	svc := New(store, nil)

	err := svc.Notify(ctx, []string{"a", "b"}, TypeTaskAssigned, "Task", "", "")
	require.Error(t, err)
	require.Len(t, store.items, 1)
	assert.Equal(t, "b", store.items[0].UserID)
}

func TestPreferencesAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(Recipient{ID: "lm", Role: "line_manager"})
	svc := New(store, nil)

	prefs, err := svc.Preferences(ctx, "lm", "line_manager")
	require.NoError(t, err)
	require.Len(t, prefs, len(Types))
	byType := map[string]TypePreference{}
	for _, p := range prefs {
		byType[p.Type] = p
	}
	assert.True(t, byType[TypeWorkRequestSubmitted].Email)
	assert.False(t, byType[TypeTaskDue].Email)

	_, err = svc.UpdatePreferences(ctx, "lm", "line_manager", []TypePreference{{Type: "bogus"}})
	assert.ErrorIs(t, err, ErrUnknownType)

	updated, err := svc.UpdatePreferences(ctx, "lm", "line_manager", []TypePreference{{Type: TypeWorkRequestSubmitted, InApp: true, Email: false}})
	require.NoError(t, err)
	for _, p := range updated {
		if p.Type == TypeWorkRequestSubmitted {
			assert.False(t, p.Email)
			assert.True(t, p.Overridden)
		}
	}
}

func TestMarkReadAndCounts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(Recipient{ID: "u", Role: "employee"})
	svc := New(store, nil)
	require.NoError(t, svc.Notify(ctx, []string{"u"}, TypeTaskAssigned, "one", "", ""))
	require.NoError(t, svc.Notify(ctx, []string{"u"}, TypeTaskDue, "two", "", ""))

	unread, err := svc.Count(ctx, "u", true)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	require.NoError(t, svc.MarkRead(ctx, "u", "u-"+TypeTaskAssigned))
	assert.ErrorIs(t, svc.MarkRead(ctx, "other", "u-"+TypeTaskDue), ErrNotFound)

	n, err := svc.MarkAllRead(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	unread, _ = svc.Count(ctx, "u", true)
	assert.Zero(t, unread)
}
