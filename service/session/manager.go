package session

import (
	"sync"
)

// DefaultHubConfigs 聊天通道广播在线状态；好友请求通道只维护在线表，不广播
func DefaultHubConfigs() []HubConfig {
	return []HubConfig{
		{Topic: TopicChat, BroadcastPresence: true},
		{Topic: TopicFriendRequests, BroadcastPresence: false},
	}
}

// Manager 进程级的 Hub 集合，显式创建、显式关闭
type Manager struct {
	mu        sync.RWMutex
	hubs      map[Topic]*Hub
	order     []Topic
	closeOnce sync.Once
}

func NewManager(confs ...HubConfig) *Manager {
	if len(confs) == 0 {
		confs = DefaultHubConfigs()
	}
	m := &Manager{hubs: make(map[Topic]*Hub, len(confs))}
	for _, c := range confs {
		if _, ok := m.hubs[c.Topic]; ok {
			continue
		}
		m.hubs[c.Topic] = NewHub(c)
		m.order = append(m.order, c.Topic)
	}
	return m
}

// Hub 未配置的 topic 返回 nil
func (m *Manager) Hub(t Topic) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[t]
}

func (m *Manager) Hubs() []*Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Hub, 0, len(m.order))
	for _, t := range m.order {
		out = append(out, m.hubs[t])
	}
	return out
}

func (m *Manager) Stats() map[Topic]Stats {
	out := make(map[Topic]Stats)
	for _, h := range m.Hubs() {
		out[h.Topic()] = h.Stats()
	}
	return out
}

// Close 关闭所有 Hub，可重复调用
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		for _, h := range m.Hubs() {
			h.Close()
		}
	})
}
