package kafka

import (
	"context"
	"encoding/json"
	"time"

	"PPresence/global"
	"PPresence/logger"
	"PPresence/service/session"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// PresenceRecord presence_events 里的一条记录
type PresenceRecord struct {
	Node     string    `json:"node"`
	Topic    string    `json:"topic"`
	Type     string    `json:"type"`
	UserID   int64     `json:"userId"`
	ConnID   string    `json:"connId,omitempty"`
	Sessions int       `json:"sessions"`
	At       time.Time `json:"at"`
}

// PresenceLog 把上下线写进 kafka 做审计，key=用户，保证同一用户有序
type PresenceLog struct {
	producer sarama.SyncProducer
	topic    string
	nodeID   string
}

func NewPresenceLog(p sarama.SyncProducer, topic, nodeID string) *PresenceLog {
	return &PresenceLog{producer: p, topic: topic, nodeID: nodeID}
}

// OnPresence 实现 session.Observer
func (l *PresenceLog) OnPresence(_ context.Context, ev session.Event) {
	b, err := json.Marshal(PresenceRecord{
		Node:     l.nodeID,
		Topic:    ev.Topic.String(),
		Type:     ev.Type,
		UserID:   ev.UserID,
		ConnID:   ev.ConnID,
		Sessions: ev.Sessions,
		At:       ev.At,
	})
	if err != nil {
		logger.Error("[Kafka] encode presence failed", zap.Error(err))
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: l.topic,
		Key:   sarama.StringEncoder(global.TopicKeyUser(ev.UserID)),
		Value: sarama.ByteEncoder(b),
	}
	partition, offset, err := l.producer.SendMessage(msg)
	if err != nil {
		logger.Warn("[Kafka] presence send failed",
			zap.String("topic", l.topic),
			zap.Int64("user_id", ev.UserID),
			zap.Error(err))
		return
	}
	logger.Debug("[Kafka] presence logged",
		zap.Int64("user_id", ev.UserID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
}
