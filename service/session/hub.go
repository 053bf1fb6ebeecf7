package session

import (
	"sync/atomic"
	"time"

	"PPresence/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("session: hub closed")

const closeDrainWait = 3 * time.Second

// HubConfig 单个 topic 的配置
type HubConfig struct {
	Topic             Topic
	BroadcastPresence bool // 是否向本 topic 所有连接广播 USER_ONLINE / USER_OFFLINE
	ObserverQueue     int
}

// Hub 一个 topic 的 Registry + Dispatcher + Presence，由 Manager 统一创建和销毁
type Hub struct {
	topic    Topic
	reg      *Registry
	disp     *Dispatcher
	presence *Presence
	announce bool
	closed   atomic.Bool
}

func NewHub(conf HubConfig) *Hub {
	h := &Hub{
		topic:    conf.Topic,
		reg:      NewRegistry(conf.Topic),
		announce: conf.BroadcastPresence,
	}
	h.disp = NewDispatcher(h.reg, h.drop)
	h.presence = NewPresence(h.reg, h.disp, conf.BroadcastPresence, conf.ObserverQueue)
	return h
}

func (h *Hub) Topic() Topic { return h.topic }

func (h *Hub) Registry() *Registry { return h.reg }

// BroadcastsPresence 本 topic 是否对连接广播上下线
func (h *Hub) BroadcastsPresence() bool { return h.announce }

// Connect 连接进入 OPEN 后调用
func (h *Hub) Connect(c Conn) (int, error) {
	if h.closed.Load() {
		return 0, ErrHubClosed
	}
	n, err := h.presence.Connect(c)
	if err != nil {
		return n, err
	}
	// 与 Close 并发时兜底，保证停机后不残留连接
	if h.closed.Load() {
		_, _ = h.presence.Disconnect(c)
		return 0, ErrHubClosed
	}
	return n, nil
}

// Disconnect 连接关闭时同步调用；已注销过的连接直接返回
func (h *Hub) Disconnect(c Conn) int {
	remaining, err := h.presence.Disconnect(c)
	if err != nil {
		if !errors.Is(err, ErrNotRegistered) {
			logger.Warn("[Hub] disconnect failed", zap.String("topic", h.topic.String()), zap.Error(err))
		}
		return 0
	}
	return remaining
}

// drop 剔除写失败的连接：先关闭再注销
func (h *Hub) drop(c Conn) {
	_ = c.Close()
	if _, err := h.presence.Disconnect(c); err == nil {
		logger.Info("[Hub] pruned connection",
			zap.String("topic", h.topic.String()),
			zap.Int64("user_id", c.UserID()),
			zap.String("conn_id", c.ID()))
	}
}

func (h *Hub) SendToUser(userID int64, payload []byte) int {
	return h.disp.SendToUser(userID, payload)
}

// SendText 纯文本通知（好友请求通道使用）
func (h *Hub) SendText(userID int64, text string) int {
	return h.disp.SendToUser(userID, []byte(text))
}

// SendEvent 编码成 {type,data} 后投递
func (h *Hub) SendEvent(userID int64, typ string, data any) (int, error) {
	payload, err := EncodeEnvelope(typ, data)
	if err != nil {
		return 0, err
	}
	return h.disp.SendToUser(userID, payload), nil
}

func (h *Hub) BroadcastAll(payload []byte) int {
	return h.disp.BroadcastAll(payload)
}

func (h *Hub) IsOnline(userID int64) bool { return h.reg.IsOnline(userID) }

func (h *Hub) ConnectionsFor(userID int64) []Conn { return h.reg.ConnectionsFor(userID) }

func (h *Hub) SessionCount(userID int64) int { return h.reg.SessionCount(userID) }

func (h *Hub) OnlineUsers() []int64 { return h.reg.OnlineUsers() }

func (h *Hub) Stats() Stats { return h.reg.Stats() }

func (h *Hub) AddObserver(obs Observer) { h.presence.AddObserver(obs) }

// Flush 等待已排队的上下线广播写完
func (h *Hub) Flush(wait time.Duration) bool { return h.presence.Flush(wait) }

// Close 关闭所有连接并清空 Registry。观察者会收到每个用户的下线事件，不再对外广播。
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	// 停机前把已排队的广播发出去
	if !h.Flush(closeDrainWait) {
		logger.Warn("[Hub] broadcast flush timeout", zap.String("topic", h.topic.String()))
	}
	conns := h.reg.Drain()
	users := make(map[int64]Conn, len(conns))
	for _, c := range conns {
		_ = c.Close()
		users[c.UserID()] = c
	}
	h.disp.metrics.connDelta(-int64(len(conns)))
	for uid, c := range users {
		h.presence.notify(Event{
			Topic:  h.topic,
			Type:   TypeUserOffline,
			UserID: uid,
			ConnID: c.ID(),
			At:     time.Now(),
		})
	}
	h.presence.Close(closeDrainWait)
	logger.Info("[Hub] closed",
		zap.String("topic", h.topic.String()),
		zap.Int("conns", len(conns)),
		zap.Int("users", len(users)))
}
