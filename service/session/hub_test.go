package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func onlineMsg(uid int64) string {
	return fmt.Sprintf(`{"type":"USER_ONLINE","data":{"userId":%d,"isOnline":true}}`, uid)
}

func offlineMsg(uid int64) string {
	return fmt.Sprintf(`{"type":"USER_OFFLINE","data":{"userId":%d,"isOnline":false}}`, uid)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{notify: make(chan struct{}, 1024)}
}

func (o *recordingObserver) OnPresence(_ context.Context, ev Event) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *recordingObserver) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		o.mu.Lock()
		if len(o.events) >= n {
			out := append([]Event(nil), o.events...)
			o.mu.Unlock()
			return out
		}
		o.mu.Unlock()
		select {
		case <-o.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d presence events", n)
		}
	}
}

func settle(t *testing.T, h *Hub) {
	t.Helper()
	if !h.Flush(2 * time.Second) {
		t.Fatal("presence broadcasts did not drain")
	}
}

func TestPresenceScenario(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat, BroadcastPresence: true})
	defer h.Close()

	watcher := newFakeConn(1)
	if _, err := h.Connect(watcher); err != nil {
		t.Fatal(err)
	}

	a1, a2 := newFakeConn(7), newFakeConn(7)
	if n, _ := h.Connect(a1); n != 1 {
		t.Fatalf("first connect = %d", n)
	}
	if n, _ := h.Connect(a2); n != 2 {
		t.Fatalf("second connect = %d", n)
	}
	if !h.IsOnline(7) {
		t.Fatal("user 7 should be online")
	}
	settle(t, h)

	_ = a1.Close()
	if n := h.Disconnect(a1); n != 1 {
		t.Fatalf("first disconnect = %d", n)
	}
	_ = a2.Close()
	if n := h.Disconnect(a2); n != 0 {
		t.Fatalf("second disconnect = %d", n)
	}
	if h.IsOnline(7) {
		t.Fatal("user 7 should be offline")
	}
	settle(t, h)

	got := watcher.received()
	want := []string{onlineMsg(1), onlineMsg(7), offlineMsg(7)}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("watcher got %v\nwant %v", got, want)
	}
	// 新连接自己也能收到自己的上线广播
	if msgs := a1.received(); len(msgs) != 1 || msgs[0] != onlineMsg(7) {
		t.Fatalf("a1 got %v", msgs)
	}
}

func TestDoubleDisconnectNoDuplicateOffline(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat, BroadcastPresence: true})
	defer h.Close()
	watcher := newFakeConn(1)
	_, _ = h.Connect(watcher)

	c := newFakeConn(2)
	_, _ = h.Connect(c)
	h.Disconnect(c)
	h.Disconnect(c)
	settle(t, h)

	offline := 0
	for _, m := range watcher.received() {
		if m == offlineMsg(2) {
			offline++
		}
	}
	if offline != 1 {
		t.Fatalf("offline broadcasts = %d", offline)
	}
}

func TestBroadcastDisabledTopic(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicFriendRequests})
	defer h.Close()
	obs := newRecordingObserver()
	h.AddObserver(obs)

	a, b := newFakeConn(1), newFakeConn(2)
	_, _ = h.Connect(a)
	_, _ = h.Connect(b)
	settle(t, h)
	if len(a.received())+len(b.received()) != 0 {
		t.Fatal("friend-requests topic must not broadcast presence")
	}
	// 在线表和观察者照常工作
	if !h.IsOnline(1) || !h.IsOnline(2) {
		t.Fatal("registry state should still be kept")
	}
	if evs := obs.wait(t, 2); evs[0].Topic != TopicFriendRequests {
		t.Fatalf("event topic = %s", evs[0].Topic)
	}
	if n := h.SendText(2, "friend_request:received:5:1"); n != 1 {
		t.Fatalf("SendText = %d", n)
	}
}

func TestObserverOrder(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat})
	defer h.Close()
	obs := newRecordingObserver()
	h.AddObserver(obs)

	const rounds = 50
	for i := 0; i < rounds; i++ {
		c := newFakeConn(5)
		_, _ = h.Connect(c)
		h.Disconnect(c)
	}
	evs := obs.wait(t, rounds*2)
	for i, ev := range evs {
		want := TypeUserOnline
		if i%2 == 1 {
			want = TypeUserOffline
		}
		if ev.Type != want || ev.UserID != 5 {
			t.Fatalf("event %d = %+v, want %s", i, ev, want)
		}
	}
}

func TestConcurrentConnectDisconnectOrdering(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat})
	defer h.Close()
	obs := newRecordingObserver()
	h.AddObserver(obs)

	var wg sync.WaitGroup
	const workers, rounds = 4, 25
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				c := newFakeConn(11)
				_, _ = h.Connect(c)
				h.Disconnect(c)
			}
		}()
	}
	wg.Wait()
	if h.IsOnline(11) {
		t.Fatal("user should end offline")
	}
	// Close 会等观察者队列处理完
	h.Close()

	// 对同一用户，ONLINE 与 OFFLINE 必须严格交替
	obs.mu.Lock()
	evs := append([]Event(nil), obs.events...)
	obs.mu.Unlock()
	if len(evs) == 0 || len(evs)%2 != 0 {
		t.Fatalf("unbalanced events: %d", len(evs))
	}
	for i, ev := range evs {
		if (i%2 == 0) != ev.Online() {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}
}

func TestBroadcastPrunesBrokenPeer(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat, BroadcastPresence: true})
	defer h.Close()

	watcher, broken := newFakeConn(1), newFakeConn(2)
	_, _ = h.Connect(watcher)
	_, _ = h.Connect(broken)
	settle(t, h)
	broken.breakWrites()

	_, _ = h.Connect(newFakeConn(3))
	settle(t, h)

	if h.IsOnline(2) {
		t.Fatal("broken peer should be pruned after failed broadcast")
	}
	want := []string{onlineMsg(1), onlineMsg(2), onlineMsg(3), offlineMsg(2)}
	if got := watcher.received(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("watcher got %v\nwant %v", got, want)
	}
}

func TestSlowPeerDoesNotBlockRegistration(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat, BroadcastPresence: true})
	defer h.Close()

	const delay = 50 * time.Millisecond
	var slow []*fakeConn
	for i := 0; i < 10; i++ {
		c := newFakeConn(int64(1000 + i))
		_, _ = h.Connect(c)
		slow = append(slow, c)
	}
	// 129 与 1 落在同一个分段锁上
	keep, extra := newFakeConn(129), newFakeConn(129)
	_, _ = h.Connect(keep)
	_, _ = h.Connect(extra)
	settle(t, h)
	for _, c := range slow {
		c.slowWrites(delay)
	}

	start := time.Now()
	if n, err := h.Connect(newFakeConn(1)); err != nil || n != 1 {
		t.Fatalf("connect = %d, %v", n, err)
	}
	if n := h.Disconnect(extra); n != 1 {
		t.Fatalf("disconnect = %d", n)
	}
	if took := time.Since(start); took > 4*delay {
		t.Fatalf("register/deregister waited on slow peers: %v", took)
	}

	// 广播仍按顺序送达
	if !h.Flush(5 * time.Second) {
		t.Fatal("broadcast did not drain")
	}
	got := slow[0].received()
	if len(got) == 0 || got[len(got)-1] != onlineMsg(1) {
		t.Fatalf("slow peer got %v", got)
	}
	for _, c := range slow {
		c.slowWrites(0)
	}
}

func TestSendEventEnvelope(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat})
	defer h.Close()
	c := newFakeConn(42)
	_, _ = h.Connect(c)

	n, err := h.SendEvent(42, TypeNewMessage, map[string]any{"id": 1})
	if err != nil || n != 1 {
		t.Fatalf("SendEvent = %d, %v", n, err)
	}
	if got := c.received(); len(got) != 1 || got[0] != `{"type":"NEW_MESSAGE","data":{"id":1}}` {
		t.Fatalf("payload = %v", got)
	}
	if _, err := h.SendEvent(42, "", nil); err == nil {
		t.Fatal("empty type should fail")
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub(HubConfig{Topic: TopicChat})
	obs := newRecordingObserver()
	h.AddObserver(obs)

	a, b := newFakeConn(1), newFakeConn(1)
	_, _ = h.Connect(a)
	_, _ = h.Connect(b)
	obs.wait(t, 1)

	h.Close()
	if a.closeCount() == 0 || b.closeCount() == 0 {
		t.Fatal("close should close every connection")
	}
	evs := obs.wait(t, 2)
	if evs[1].Type != TypeUserOffline || evs[1].UserID != 1 {
		t.Fatalf("observer should see offline on close, got %+v", evs[1])
	}
	if _, err := h.Connect(newFakeConn(2)); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("connect after close err = %v", err)
	}
	// 关闭后 handler 再注销是 no-op
	if n := h.Disconnect(a); n != 0 {
		t.Fatalf("disconnect after close = %d", n)
	}
	h.Close()
}

func TestManager(t *testing.T) {
	m := NewManager()
	defer m.Close()

	chat, friend := m.Hub(TopicChat), m.Hub(TopicFriendRequests)
	if chat == nil || friend == nil {
		t.Fatal("default hubs missing")
	}
	if m.Hub("unknown") != nil {
		t.Fatal("unknown topic should be nil")
	}

	// 两个 topic 的在线表互相独立
	_, _ = chat.Connect(newFakeConn(5))
	if friend.IsOnline(5) {
		t.Fatal("chat presence leaked into friend-requests")
	}
	stats := m.Stats()
	if stats[TopicChat].Conns != 1 || stats[TopicFriendRequests].Conns != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	m.Close()
	m.Close()
	if chat.Stats().Conns != 0 {
		t.Fatal("manager close should drain hubs")
	}
}
