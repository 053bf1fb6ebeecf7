package session

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// 出站 envelope 的 type
const (
	TypeNewMessage  = "NEW_MESSAGE"
	TypeUserOnline  = "USER_ONLINE"
	TypeUserOffline = "USER_OFFLINE"
)

// Envelope 线上统一格式 {"type": "...", "data": {...}}
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InboundEnvelope 入站帧，data 先解成 map，由各业务 handler 再 decode
type InboundEnvelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type PresenceData struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
}

func EncodeEnvelope(typ string, data any) ([]byte, error) {
	if typ == "" {
		return nil, errors.New("envelope type is empty")
	}
	b, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		return nil, errors.Wrapf(err, "encode envelope type=%s", typ)
	}
	return b, nil
}

func DecodeEnvelope(raw []byte) (*InboundEnvelope, error) {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if env.Type == "" {
		return nil, errors.New("envelope missing type")
	}
	return &env, nil
}

// Event 一次在线状态变化，投递给 Observer
type Event struct {
	Topic    Topic     `json:"topic"`
	Type     string    `json:"type"` // USER_ONLINE / USER_OFFLINE
	UserID   int64     `json:"userId"`
	ConnID   string    `json:"connId,omitempty"`
	Sessions int       `json:"sessions"`
	At       time.Time `json:"at"`
}

func (e Event) Online() bool { return e.Type == TypeUserOnline }
