package notificationshandler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/platform/realtime"
	"workforce/internal/transport/http/handlertest"
	"workforce/internal/transport/http/middleware"
)

type stubService struct {
	items       []notifications.Notification
	lastUnread  bool
	lastLimit   int
	read        map[string]bool
	prefUpdates []notifications.TypePreference
}

func newStub() *stubService {
	var items []notifications.Notification
	for i := 0; i < 3; i++ {
		items = append(items, notifications.Notification{ID: fmt.Sprintf("n%d", i), UserID: "e1", Type: notifications.TypeTaskAssigned, Title: "Task"})
	}
	return &stubService{items: items, read: map[string]bool{}}
}

func (s *stubService) List(_ context.Context, _ string, unreadOnly bool, limit, _ int) ([]notifications.Notification, error) {
	s.lastUnread, s.lastLimit = unreadOnly, limit
	return s.items[:1], nil
}

func (s *stubService) Count(_ context.Context, _ string, unreadOnly bool) (int, error) {
	if unreadOnly {
		return len(s.items) - len(s.read), nil
	}
	return len(s.items), nil
}

func (s *stubService) MarkRead(_ context.Context, _ string, id string) error {
	for _, n := range s.items {
		if n.ID == id {
			s.read[id] = true
			return nil
		}
	}
	return notifications.ErrNotFound
}

func (s *stubService) MarkAllRead(context.Context, string) (int64, error) {
	n := int64(len(s.items) - len(s.read))
	for _, item := range s.items {
		s.read[item.ID] = true
	}
	return n, nil
}

func (s *stubService) Preferences(_ context.Context, _, role string) ([]notifications.TypePreference, error) {
	pref := notifications.BuiltinDefaults().Resolve(role, notifications.TypeTaskAssigned, nil)
	return []notifications.TypePreference{{Type: notifications.TypeTaskAssigned, InApp: pref.InApp, Email: pref.Email}}, nil
}

func (s *stubService) UpdatePreferences(ctx context.Context, userID, role string, updates []notifications.TypePreference) ([]notifications.TypePreference, error) {
	s.prefUpdates = updates
	return s.Preferences(ctx, userID, role)
}

func TestListSetsTotalHeader(t *testing.T) {
	svc := newStub()
	router := handlertest.Router(NewHandler(svc, nil))
	user := handlertest.User("e1", auth.RoleEmployee)

	rec := handlertest.Raw(router, http.MethodGet, "/notifications?unread=true&limit=1", nil, "", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Total-Count"))
	assert.True(t, svc.lastUnread)
	assert.Equal(t, 1, svc.lastLimit)

	code, _ := handlertest.Do(t, router, http.MethodGet, "/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMarkReadFlow(t *testing.T) {
	router := handlertest.Router(NewHandler(newStub(), nil))
	user := handlertest.User("e1", auth.RoleEmployee)

	code, _ := handlertest.Do(t, router, http.MethodPost, "/notifications/n1/read", "", user)
	assert.Equal(t, http.StatusOK, code)
	code, _ = handlertest.Do(t, router, http.MethodPost, "/notifications/zz/read", "", user)
	assert.Equal(t, http.StatusNotFound, code)

	code, env := handlertest.Do(t, router, http.MethodGet, "/notifications/unread-count", "", user)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"unread":2}`, string(env.Data))

	code, env = handlertest.Do(t, router, http.MethodPost, "/notifications/read-all", "", user)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":2}`, string(env.Data))
}

func TestPreferences(t *testing.T) {
	svc := newStub()
	router := handlertest.Router(NewHandler(svc, nil))
	user := handlertest.User("e1", auth.RoleEmployee)

	code, env := handlertest.Do(t, router, http.MethodGet, "/notifications/preferences", "", user)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), notifications.TypeTaskAssigned)

	code, env = handlertest.Do(t, router, http.MethodPut, "/notifications/preferences", `{"preferences":[{"type":"nope","inApp":false,"email":true}]}`, user)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(env.Error.Details), "nope")

	body := fmt.Sprintf(`{"preferences":[{"type":%q,"inApp":false,"email":true}]}`, notifications.TypeTaskAssigned)
	code, _ = handlertest.Do(t, router, http.MethodPut, "/notifications/preferences", body, user)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, svc.prefUpdates, 1)
	assert.True(t, svc.prefUpdates[0].Email)
}

func TestStreamDeliversPublishedMessages(t *testing.T) {
	hub := realtime.NewHub(nil, nil)
	inner := handlertest.Router(NewHandler(newStub(), hub))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithUser(r.Context(), auth.UserContext{UserID: "e1", RoleName: auth.RoleEmployee})
		inner.ServeHTTP(w, r.WithContext(ctx))
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/notifications/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg realtime.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	require.Eventually(t, func() bool { return hub.Connected("e1") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.Publish("e1", realtime.Message{Type: "notification", Data: map[string]string{"title": "hi"}}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "notification", msg.Type)
}

func TestStreamDisabled(t *testing.T) {
	router := handlertest.Router(NewHandler(newStub(), nil))
	code, env := handlertest.Do(t, router, http.MethodGet, "/notifications/ws", "", handlertest.User("e1", auth.RoleEmployee))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "stream_unavailable", env.ErrorCode())
}
