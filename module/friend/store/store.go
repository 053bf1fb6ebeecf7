package store

import (
	"context"
	"sync"
	"time"

	"PPresence/module/friend/model"
	"PPresence/tools/errs"
)

type Store interface {
	Create(ctx context.Context, r *model.Request) error
	Get(ctx context.Context, id int64) (*model.Request, error)
	// HasPending from -> to 方向是否已有待处理申请
	HasPending(ctx context.Context, from, to int64) (bool, error)
	// Transition 仅当当前状态为 pending 时更新，否则 ErrStateConflict
	Transition(ctx context.Context, id int64, to model.Status, at time.Time) error
}

type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]*model.Request)}
}

func (s *MemoryStore) Create(_ context.Context, r *model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	r.CreatedAt = time.Now()
	cp := *r
	s.rows[r.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("friend request", "id", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) HasPending(_ context.Context, from, to int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.FromUserID == from && r.ToUserID == to && r.Status == model.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Transition(_ context.Context, id int64, to model.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("friend request", "id", id)
	}
	if r.Status != model.StatusPending {
		return errs.ErrStateConflict.WrapMsg("friend request already handled", "id", id, "status", r.Status)
	}
	r.Status = to
	r.HandledAt = &at
	return nil
}
