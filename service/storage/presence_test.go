package storage

import (
	"context"
	"testing"
	"time"

	"PPresence/global"
	"PPresence/service/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestPresence(t *testing.T, node string) (*RedisPresence, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisPresence(rdb, node, 30*time.Second), mr, rdb
}

func TestMirrorOnlineOffline(t *testing.T) {
	p, mr, _ := newTestPresence(t, "gw-1")
	ctx := context.Background()
	topic := session.TopicChat.String()

	p.OnPresence(ctx, session.Event{Topic: session.TopicChat, Type: session.TypeUserOnline, UserID: 7})
	key := global.PresenceKey(topic, 7)
	if !mr.Exists(key) || mr.HGet(key, "gw-1") == "" {
		t.Fatalf("key %s not written", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("ttl = %v", ttl)
	}
	if ok, err := p.Lookup(session.TopicChat).Online(ctx, 7); err != nil || !ok {
		t.Fatalf("online = %v, %v", ok, err)
	}
	if ok, _ := p.OnlineIn(ctx, session.TopicFriendRequests.String(), 7); ok {
		t.Fatal("topics are independent")
	}

	p.OnPresence(ctx, session.Event{Topic: session.TopicChat, Type: session.TypeUserOffline, UserID: 7})
	if mr.Exists(key) {
		t.Fatal("key should be deleted when the last node leaves")
	}
	if ok, _ := p.OnlineIn(ctx, topic, 7); ok {
		t.Fatal("user should be offline")
	}
}

func TestMirrorMultipleNodes(t *testing.T) {
	a, mr, rdb := newTestPresence(t, "gw-a")
	b := NewRedisPresence(rdb, "gw-b", 30*time.Second)
	ctx := context.Background()
	topic := session.TopicChat.String()

	_ = a.MarkOnline(ctx, topic, 9)
	_ = b.MarkOnline(ctx, topic, 9)
	left, err := a.MarkOffline(ctx, topic, 9)
	if err != nil || left != 1 {
		t.Fatalf("left = %d, %v", left, err)
	}
	nodes, _ := b.Nodes(ctx, topic, 9)
	if len(nodes) != 1 || nodes[0] != "gw-b" {
		t.Fatalf("nodes = %v", nodes)
	}
	if !mr.Exists(global.PresenceKey(topic, 9)) {
		t.Fatal("key must survive while gw-b holds the user")
	}
}

func TestStaleNodeIgnored(t *testing.T) {
	p, _, _ := newTestPresence(t, "gw-1")
	ctx := context.Background()
	base := time.Now()
	p.now = func() time.Time { return base }
	_ = p.MarkOnline(ctx, "chat", 3)

	p.now = func() time.Time { return base.Add(45 * time.Second) }
	if ok, _ := p.OnlineIn(ctx, "chat", 3); ok {
		t.Fatal("node that missed its refresh should not count")
	}
	if err := p.Refresh(ctx, "chat", []int64{3}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := p.OnlineIn(ctx, "chat", 3); !ok {
		t.Fatal("refresh should revive the node")
	}
}

func TestKeyExpiresWithoutRefresh(t *testing.T) {
	p, mr, _ := newTestPresence(t, "gw-1")
	ctx := context.Background()
	_ = p.MarkOnline(ctx, "chat", 4)
	mr.FastForward(31 * time.Second)
	if ok, _ := p.OnlineIn(ctx, "chat", 4); ok {
		t.Fatal("expired key should read offline")
	}
}
