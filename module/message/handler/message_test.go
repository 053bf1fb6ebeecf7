package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"PPresence/global"
	"PPresence/middleware"
	midsec "PPresence/middleware/security"
	"PPresence/module/message/service"
	"PPresence/module/message/store"
	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

type staticNotifier struct{ online map[int64]bool }

func (n staticNotifier) SendEvent(int64, string, any) (int, error) { return 0, nil }
func (n staticNotifier) IsOnline(uid int64) bool                   { return n.online[uid] }

type staticLookup map[int64]bool

func (l staticLookup) Online(_ context.Context, uid int64) (bool, error) { return l[uid], nil }

func newTestRouter(uid int64) *gin.Engine {
	return newSharedRouter(store.NewMemoryStore(), uid)
}

// 默认用户为 uid，X-Test-User 头可以切换当前用户
func newSharedRouter(st store.Store, uid int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		id := uid
		if v := c.GetHeader("X-Test-User"); v != "" {
			id, _ = strconv.ParseInt(v, 10, 64)
		}
		c.Set(midsec.PPCtxUserIDKey, id)
	})
	svc := service.NewMessageService(st, staticNotifier{online: map[int64]bool{5: true}},
		service.WithPresenceLookup(staticLookup{6: true}))
	NewMessageHandler(svc).Register(middleware.NewRoutes(r, nil))
	return r
}

func call(t *testing.T, r *gin.Engine, method, path string, body any) global.Msg {
	t.Helper()
	return callAs(t, r, 0, method, path, body)
}

func callAs(t *testing.T, r *gin.Engine, uid int64, method, path string, body any) global.Msg {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid > 0 {
		req.Header.Set("X-Test-User", strconv.FormatInt(uid, 10))
	}
	r.ServeHTTP(w, req)
	var m global.Msg
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestSendAndList(t *testing.T) {
	r := newTestRouter(1)
	m := call(t, r, http.MethodPost, "/api/messages", map[string]any{"receiverId": 5, "content": "hey"})
	if m.Code != 200 {
		t.Fatalf("send = %+v", m)
	}
	m = call(t, r, http.MethodGet, "/api/messages/5?limit=10", nil)
	data := m.Data.(map[string]any)
	if msgs := data["messages"].([]any); len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
	if data["peerOnline"] != true {
		t.Fatalf("peer 5 is online locally: %v", data)
	}
}

func TestSendBadRequest(t *testing.T) {
	r := newTestRouter(1)
	if m := call(t, r, http.MethodPost, "/api/messages", map[string]any{"content": "hey"}); m.Code != errs.ArgsError {
		t.Fatalf("missing receiver = %+v", m)
	}
	if m := call(t, r, http.MethodGet, "/api/messages/abc", nil); m.Code != errs.ArgsError {
		t.Fatalf("bad peer = %+v", m)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	r := newTestRouter(1)
	cases := map[string]bool{"/api/presence/5": true, "/api/presence/6": true, "/api/presence/7": false}
	for path, want := range cases {
		m := call(t, r, http.MethodGet, path, nil)
		if got := m.Data.(map[string]any)["isOnline"]; got != want {
			t.Errorf("%s isOnline = %v, want %v", path, got, want)
		}
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	r := newTestRouter(2)
	m := call(t, r, http.MethodPost, "/api/messages/1/read", nil)
	if m.Code != 200 || m.Data.(map[string]any)["updated"] != float64(0) {
		t.Fatalf("mark read = %+v", m)
	}
}

func TestConversationsEndpoint(t *testing.T) {
	r := newSharedRouter(store.NewMemoryStore(), 1)
	send := func(from, to int64, content string) {
		t.Helper()
		if m := callAs(t, r, from, http.MethodPost, "/api/messages", map[string]any{"receiverId": to, "content": content}); m.Code != 200 {
			t.Fatalf("send %d->%d = %+v", from, to, m)
		}
	}
	send(5, 1, "from five")
	send(6, 1, "from six")
	send(6, 1, "again")
	send(1, 7, "to seven")

	m := call(t, r, http.MethodGet, "/api/messages/conversations", nil)
	list, ok := m.Data.([]any)
	if m.Code != 200 || !ok || len(list) != 3 {
		t.Fatalf("conversations = %+v", m)
	}
	byPeer := map[float64]map[string]any{}
	for _, it := range list {
		c := it.(map[string]any)
		byPeer[c["friendId"].(float64)] = c
	}
	cases := []struct {
		peer   float64
		unread float64
		online bool
		last   string
	}{
		{5, 1, true, "from five"},
		{6, 2, true, "again"},
		{7, 0, false, "to seven"},
	}
	for _, tc := range cases {
		c := byPeer[tc.peer]
		if c == nil {
			t.Fatalf("peer %v missing from %v", tc.peer, list)
		}
		if c["unreadCount"] != tc.unread || c["isOnline"] != tc.online || c["lastMessage"] != tc.last {
			t.Errorf("peer %v = %v", tc.peer, c)
		}
	}
}

func TestUnreadEndpoint(t *testing.T) {
	r := newSharedRouter(store.NewMemoryStore(), 2)
	for i := 0; i < 3; i++ {
		callAs(t, r, 1, http.MethodPost, "/api/messages", map[string]any{"receiverId": 2, "content": "hi"})
	}
	m := call(t, r, http.MethodGet, "/api/messages/1/unread", nil)
	if m.Code != 200 || m.Data.(map[string]any)["unreadCount"] != float64(3) {
		t.Fatalf("unread = %+v", m)
	}
	call(t, r, http.MethodPost, "/api/messages/1/read", nil)
	m = call(t, r, http.MethodGet, "/api/messages/1/unread", nil)
	if m.Data.(map[string]any)["unreadCount"] != float64(0) {
		t.Fatalf("unread after read = %+v", m)
	}
	if m := call(t, r, http.MethodGet, "/api/messages/x/unread", nil); m.Code != errs.ArgsError {
		t.Fatalf("bad peer = %+v", m)
	}
}
