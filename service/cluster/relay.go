package cluster

import (
	"context"
	"encoding/json"
	"time"

	"PPresence/global"
	"PPresence/logger"
	"PPresence/service/natsx"
	"PPresence/service/session"
	"PPresence/tools/errs"

	"go.uber.org/zap"
)

const (
	HeaderGatewayID = "Gateway-Id"

	publishTimeout = 2 * time.Second
	IdemTTL        = 5 * time.Minute
)

// Bus *natsx.NatsManager 满足
type Bus interface {
	RegisterRoute(r natsx.NatsxRoute) error
	Subscribe(biz string, h natsx.NatsxHandler) error
	PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string) error
}

// PresenceNotice presence.<topic> 上的消息
type PresenceNotice struct {
	Node   string    `json:"node"`
	Topic  string    `json:"topic"`
	Type   string    `json:"type"`
	UserID int64     `json:"userId"`
	At     time.Time `json:"at"`
}

// DeliverRequest deliver.<topic> 上的消息；Text 非空时按纯文本投递，否则编码成 {type,data}
type DeliverRequest struct {
	Node   string          `json:"node"`
	UserID int64           `json:"userId"`
	Type   string          `json:"type,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Text   string          `json:"text,omitempty"`
}

func presenceBiz(t session.Topic) string { return "presence:" + t.String() }
func deliverBiz(t session.Topic) string  { return "deliver:" + t.String() }

// Relay 多网关之间的在线状态与投递中转。
// 每个节点都订阅 deliver.<topic>，只把请求投递给本节点上的连接。
type Relay struct {
	nodeID string
	bus    Bus
	hubs   map[session.Topic]*session.Hub
}

func NewRelay(nodeID string, bus Bus, hubs ...*session.Hub) *Relay {
	r := &Relay{nodeID: nodeID, bus: bus, hubs: make(map[session.Topic]*session.Hub, len(hubs))}
	for _, h := range hubs {
		r.hubs[h.Topic()] = h
	}
	return r
}

// Start 注册路由并订阅；广播在线状态的 topic 额外挂上 presence 观察者
func (r *Relay) Start() error {
	for topic, h := range r.hubs {
		if err := r.bus.RegisterRoute(natsx.NatsxRoute{Biz: deliverBiz(topic), Subject: global.DeliverSubject(topic.String())}); err != nil {
			return err
		}
		if err := r.bus.Subscribe(deliverBiz(topic), r.onDeliver(h)); err != nil {
			return err
		}
		if !h.BroadcastsPresence() {
			continue
		}
		if err := r.bus.RegisterRoute(natsx.NatsxRoute{Biz: presenceBiz(topic), Subject: global.PresenceSubject(topic.String())}); err != nil {
			return err
		}
		if err := r.bus.Subscribe(presenceBiz(topic), r.onPresence(h)); err != nil {
			return err
		}
		h.AddObserver(session.ObserverFunc(r.publishPresence))
	}
	logger.Info("[Cluster] relay started", zap.String("node", r.nodeID), zap.Int("topics", len(r.hubs)))
	return nil
}

func (r *Relay) header() map[string]string {
	return map[string]string{HeaderGatewayID: r.nodeID}
}

func (r *Relay) publishPresence(ctx context.Context, ev session.Event) {
	b, err := json.Marshal(PresenceNotice{
		Node:   r.nodeID,
		Topic:  ev.Topic.String(),
		Type:   ev.Type,
		UserID: ev.UserID,
		At:     ev.At,
	})
	if err != nil {
		logger.Error("[Cluster] encode presence failed", zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.bus.PublishOnce(pctx, presenceBiz(ev.Topic), b, r.header()); err != nil {
		logger.Warn("[Cluster] publish presence failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}

// onPresence 其他节点上的上下线；本节点上该用户还有连接时以本节点为准，不重复广播
func (r *Relay) onPresence(h *session.Hub) natsx.NatsxHandler {
	return func(_ context.Context, msg natsx.NatsxMessage) error {
		var n PresenceNotice
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			return errs.WrapMsg(err, "decode presence notice")
		}
		if n.Node == r.nodeID || h.IsOnline(n.UserID) {
			return nil
		}
		payload, err := session.EncodeEnvelope(n.Type, session.PresenceData{
			UserID:   n.UserID,
			IsOnline: n.Type == session.TypeUserOnline,
		})
		if err != nil {
			return err
		}
		sent := h.BroadcastAll(payload)
		logger.Debug("[Cluster] remote presence",
			zap.String("from", n.Node),
			zap.String("type", n.Type),
			zap.Int64("user_id", n.UserID),
			zap.Int("delivered", sent))
		return nil
	}
}

func (r *Relay) onDeliver(h *session.Hub) natsx.NatsxHandler {
	return func(_ context.Context, msg natsx.NatsxMessage) error {
		var req DeliverRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return errs.WrapMsg(err, "decode deliver request")
		}
		if req.Node == r.nodeID || req.UserID <= 0 {
			return nil
		}
		var sent int
		if req.Text != "" {
			sent = h.SendText(req.UserID, req.Text)
		} else {
			payload, err := session.EncodeEnvelope(req.Type, req.Data)
			if err != nil {
				return err
			}
			sent = h.SendToUser(req.UserID, payload)
		}
		logger.Debug("[Cluster] remote deliver",
			zap.String("from", req.Node),
			zap.String("topic", h.Topic().String()),
			zap.Int64("user_id", req.UserID),
			zap.Int("delivered", sent))
		return nil
	}
}

// Forward 请求其他节点把消息投递给它们本地的连接
func (r *Relay) Forward(ctx context.Context, topic session.Topic, req DeliverRequest) error {
	req.Node = r.nodeID
	b, err := json.Marshal(req)
	if err != nil {
		return errs.WrapMsg(err, "encode deliver request")
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.bus.PublishOnce(pctx, deliverBiz(topic), b, r.header())
}
