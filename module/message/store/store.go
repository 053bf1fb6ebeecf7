package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"PPresence/module/message/model"
)

// Store 消息持久化
type Store interface {
	Save(ctx context.Context, m *model.Message) error
	// Conversation 两人之间最近 limit 条，按时间正序返回
	Conversation(ctx context.Context, userA, userB int64, limit int) ([]*model.Message, error)
	// MarkRead 把 sender 发给 receiver 的未读消息置为已读
	MarkRead(ctx context.Context, receiverID, senderID int64) (int64, error)
	// LastMessages 与每个会话对象的最后一条消息，按时间倒序
	LastMessages(ctx context.Context, userID int64) ([]*model.Message, error)
	// UnreadCount sender 发给 receiver 的未读数
	UnreadCount(ctx context.Context, receiverID, senderID int64) (int64, error)
}

// MemoryStore 未配置 Mongo 时使用，仅单进程
type MemoryStore struct {
	mu   sync.RWMutex
	msgs []*model.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, m *model.Message) error {
	cp := *m
	s.mu.Lock()
	s.msgs = append(s.msgs, &cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Conversation(_ context.Context, a, b int64, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	var out []*model.Message
	for _, m := range s.msgs {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, receiverID, senderID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, m := range s.msgs {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.IsRead {
			m.IsRead = true
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LastMessages(_ context.Context, userID int64) ([]*model.Message, error) {
	s.mu.RLock()
	last := make(map[int64]*model.Message)
	for _, m := range s.msgs {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		peer := m.PeerOf(userID)
		if cur, ok := last[peer]; !ok || !m.CreatedAt.Before(cur.CreatedAt) {
			last[peer] = m
		}
	}
	out := make([]*model.Message, 0, len(last))
	for _, m := range last {
		cp := *m
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, receiverID, senderID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.msgs {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.IsRead {
			n++
		}
	}
	return n, nil
}
