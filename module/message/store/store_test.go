package store

import (
	"context"
	"testing"
	"time"

	"PPresence/module/message/model"
)

func seed(t *testing.T, s *MemoryStore, base time.Time) {
	t.Helper()
	msgs := []*model.Message{
		{ID: 1, SenderID: 1, ReceiverID: 2, Content: "a", CreatedAt: base},
		{ID: 2, SenderID: 2, ReceiverID: 1, Content: "b", CreatedAt: base.Add(time.Second)},
		{ID: 3, SenderID: 1, ReceiverID: 3, Content: "other", CreatedAt: base.Add(2 * time.Second)},
		{ID: 4, SenderID: 1, ReceiverID: 2, Content: "c", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		if err := s.Save(context.Background(), m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
}

func TestMemoryConversationOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, time.Now())

	all, err := s.Conversation(context.Background(), 2, 1, 0)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 4 {
		t.Fatalf("unexpected conversation: %+v", all)
	}

	last, _ := s.Conversation(context.Background(), 1, 2, 2)
	if len(last) != 2 || last[0].ID != 2 || last[1].ID != 4 {
		t.Fatalf("limit should keep the newest, oldest first: %+v", last)
	}
}

func TestMemoryMarkRead(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, time.Now())

	n, err := s.MarkRead(context.Background(), 2, 1)
	if err != nil || n != 2 {
		t.Fatalf("mark read: n=%d err=%v", n, err)
	}
	if n, _ := s.MarkRead(context.Background(), 2, 1); n != 0 {
		t.Fatalf("second mark read should update nothing, got %d", n)
	}

	msgs, _ := s.Conversation(context.Background(), 1, 2, 0)
	for _, m := range msgs {
		if want := m.ReceiverID == 2; m.IsRead != want {
			t.Fatalf("message %d read=%v", m.ID, m.IsRead)
		}
	}
}

func TestMemorySaveCopies(t *testing.T) {
	s := NewMemoryStore()
	m := &model.Message{ID: 9, SenderID: 1, ReceiverID: 2, Content: "x", CreatedAt: time.Now()}
	_ = s.Save(context.Background(), m)
	m.Content = "changed"

	got, _ := s.Conversation(context.Background(), 1, 2, 0)
	if len(got) != 1 || got[0].Content != "x" {
		t.Fatalf("store should keep its own copy: %+v", got)
	}
}

func TestMemoryLastMessagesAndUnread(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now()
	seed(t, s, base)

	last, err := s.LastMessages(context.Background(), 1)
	if err != nil || len(last) != 2 {
		t.Fatalf("last messages = %+v, %v", last, err)
	}
	// 最新的会话在前：与 2 的最后一条是 4，与 3 的是 3
	if last[0].ID != 4 || last[1].ID != 3 {
		t.Fatalf("order = %d, %d", last[0].ID, last[1].ID)
	}
	if last[0].PeerOf(1) != 2 || last[1].PeerOf(1) != 3 {
		t.Fatal("peer mapping wrong")
	}

	if n, _ := s.UnreadCount(context.Background(), 2, 1); n != 2 {
		t.Fatalf("unread 1->2 = %d", n)
	}
	if n, _ := s.UnreadCount(context.Background(), 1, 2); n != 1 {
		t.Fatalf("unread 2->1 = %d", n)
	}
}
