package cluster

import (
	"context"
	"encoding/json"

	"PPresence/logger"
	"PPresence/service/session"

	"go.uber.org/zap"
)

// NodeLookup 用户当前在哪些网关上，*storage.RedisPresence 满足
type NodeLookup interface {
	Nodes(ctx context.Context, topic string, userID int64) ([]string, error)
}

// Notifier 先投本节点，再按需转发给其他网关。
// 满足消息服务和好友服务的 Notifier 接口。
type Notifier struct {
	hub    *session.Hub
	relay  *Relay
	lookup NodeLookup
}

// Notifier lookup 为空时每次都转发
func (r *Relay) Notifier(hub *session.Hub, lookup NodeLookup) *Notifier {
	return &Notifier{hub: hub, relay: r, lookup: lookup}
}

func (n *Notifier) SendEvent(userID int64, typ string, data any) (int, error) {
	sent, err := n.hub.SendEvent(userID, typ, data)
	if err != nil {
		return sent, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return sent, err
	}
	n.forward(DeliverRequest{UserID: userID, Type: typ, Data: raw})
	return sent, nil
}

func (n *Notifier) SendText(userID int64, text string) int {
	sent := n.hub.SendText(userID, text)
	n.forward(DeliverRequest{UserID: userID, Text: text})
	return sent
}

func (n *Notifier) IsOnline(userID int64) bool {
	return n.hub.IsOnline(userID)
}

func (n *Notifier) forward(req DeliverRequest) {
	ctx := context.Background()
	topic := n.hub.Topic()
	if !n.elsewhere(ctx, topic, req.UserID) {
		return
	}
	if err := n.relay.Forward(ctx, topic, req); err != nil {
		logger.Warn("[Cluster] forward failed",
			zap.String("topic", topic.String()),
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
	}
}

// elsewhere 其他节点上是否可能有该用户；查询失败时按可能有处理
func (n *Notifier) elsewhere(ctx context.Context, topic session.Topic, userID int64) bool {
	if n.lookup == nil {
		return true
	}
	nodes, err := n.lookup.Nodes(ctx, topic.String(), userID)
	if err != nil {
		logger.Warn("[Cluster] node lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}
	for _, node := range nodes {
		if node != n.relay.nodeID {
			return true
		}
	}
	return false
}
