package session

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrNotRegistered 重复注销时返回，调用方按 no-op 处理
	ErrNotRegistered  = errors.New("session: connection not registered")
	ErrConnConflict   = errors.New("session: connection id owned by another user")
	ErrInvalidSession = errors.New("session: invalid user or connection")
)

// Registry 单个 topic 的在线连接表。
// byConn 是 byUser 的精确反向索引；byUser 中不存在空集合。
type Registry struct {
	topic Topic

	mu     sync.RWMutex
	byUser map[int64]map[string]Conn // userId -> connId -> conn
	byConn map[string]int64          // connId -> userId
}

type Stats struct {
	Users int `json:"users"`
	Conns int `json:"conns"`
}

func NewRegistry(topic Topic) *Registry {
	return &Registry{
		topic:  topic,
		byUser: make(map[int64]map[string]Conn),
		byConn: make(map[string]int64),
	}
}

func (r *Registry) Topic() Topic { return r.topic }

// Register 绑定连接到用户，返回该用户当前连接数。同一连接重复注册是幂等的。
func (r *Registry) Register(userID int64, c Conn) (int, error) {
	n, _, err := r.register(userID, c)
	return n, err
}

func (r *Registry) register(userID int64, c Conn) (count int, added bool, err error) {
	if c == nil || userID <= 0 {
		return 0, false, errors.Wrapf(ErrInvalidSession, "topic=%s user=%d", r.topic, userID)
	}
	id := c.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[id]; ok {
		if owner != userID {
			return len(r.byUser[userID]), false,
				errors.Wrapf(ErrConnConflict, "topic=%s conn=%s owner=%d user=%d", r.topic, id, owner, userID)
		}
		return len(r.byUser[userID]), false, nil
	}

	set := r.byUser[userID]
	if set == nil {
		set = make(map[string]Conn, 1)
		r.byUser[userID] = set
	}
	set[id] = c
	r.byConn[id] = userID
	return len(set), true, nil
}

// Deregister 解绑连接，返回所属用户与剩余连接数；已不存在时返回 ErrNotRegistered。
func (r *Registry) Deregister(c Conn) (userID int64, remaining int, err error) {
	if c == nil {
		return 0, 0, ErrNotRegistered
	}
	return r.deregisterID(c.ID())
}

func (r *Registry) deregisterID(connID string) (userID int64, remaining int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return 0, 0, ErrNotRegistered
	}
	delete(r.byConn, connID)

	set := r.byUser[userID]
	delete(set, connID)
	remaining = len(set)
	if remaining == 0 {
		delete(r.byUser, userID)
	}
	return userID, remaining, nil
}

// ConnectionsFor 返回快照，调用方可以在 Registry 并发变更时安全遍历
func (r *Registry) ConnectionsFor(userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// IsOnline 至少有一条 OPEN 状态的连接
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.byUser[userID] {
		if c.State() == StateOpen {
			return true
		}
	}
	return false
}

func (r *Registry) SessionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

func (r *Registry) OnlineUsers() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int64, 0, len(r.byUser))
	for uid := range r.byUser {
		out = append(out, uid)
	}
	return out
}

// Snapshot 当前 topic 下的全部连接
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.byConn))
	for _, set := range r.byUser {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Users: len(r.byUser), Conns: len(r.byConn)}
}

// Drain 清空并返回全部连接，用于停机
func (r *Registry) Drain() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Conn, 0, len(r.byConn))
	for _, set := range r.byUser {
		for _, c := range set {
			out = append(out, c)
		}
	}
	r.byUser = make(map[int64]map[string]Conn)
	r.byConn = make(map[string]int64)
	return out
}
