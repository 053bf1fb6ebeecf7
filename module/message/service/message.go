package service

import (
	"context"
	"strings"
	"time"

	"PPresence/logger"
	"PPresence/module/message/model"
	"PPresence/module/message/store"
	"PPresence/service/session"
	"PPresence/tools/errs"
	"PPresence/tools/ids"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxContentLen   = 8 * 1024
)

// Notifier 实时推送，*session.Hub 满足
type Notifier interface {
	SendEvent(userID int64, typ string, data any) (int, error)
	IsOnline(userID int64) bool
}

// PresenceLookup 跨节点在线查询（redis 镜像）
type PresenceLookup interface {
	Online(ctx context.Context, userID int64) (bool, error)
}

type Option func(*MessageService)

// WithPresenceLookup 本节点不在线时再查集群；不设置时只看本节点
func WithPresenceLookup(l PresenceLookup) Option {
	return func(s *MessageService) { s.lookup = l }
}

type MessageService struct {
	store    store.Store
	notifier Notifier
	lookup   PresenceLookup
}

func NewMessageService(st store.Store, n Notifier, opts ...Option) *MessageService {
	s := &MessageService{store: st, notifier: n}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage 先落库再推送；推送结果不影响返回，离线用户靠拉取历史补齐
func (s *MessageService) SendMessage(ctx context.Context, senderID int64, req *model.SendMessageDto) (*model.MessageDto, error) {
	if err := validate(senderID, req); err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &model.Message{
		ID:              ids.Generate(),
		SenderID:        senderID,
		ReceiverID:      req.ReceiverID,
		Content:         req.Content,
		MessageType:     req.MessageType,
		IsEncrypted:     req.IsEncrypted,
		EncryptedAESKey: req.EncryptedAESKey,
		IV:              req.IV,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if msg.MessageType == "" {
		msg.MessageType = model.TypeText
	}
	if err := s.store.Save(ctx, msg); err != nil {
		return nil, errs.WrapMsg(err, "save message", "sender", senderID)
	}

	dto := msg.ToDto()
	delivered, err := s.notifier.SendEvent(msg.ReceiverID, session.TypeNewMessage, dto)
	if err != nil {
		logger.Warn("[Message] push failed", zap.Int64("msg_id", msg.ID), zap.Error(err))
	} else {
		logger.Debug("[Message] pushed",
			zap.Int64("msg_id", msg.ID),
			zap.Int64("receiver", msg.ReceiverID),
			zap.Int("delivered", delivered))
	}
	return dto, nil
}

func validate(senderID int64, req *model.SendMessageDto) error {
	if req == nil {
		return errs.ErrArgs.WrapMsg("empty request")
	}
	if senderID <= 0 {
		return errs.ErrNoPermission.WrapMsg("unknown sender")
	}
	if req.ReceiverID <= 0 {
		return errs.ErrArgs.WrapMsg("receiverId required", "receiverId", req.ReceiverID)
	}
	if req.ReceiverID == senderID {
		return errs.ErrArgs.WrapMsg("cannot send to self")
	}
	if strings.TrimSpace(req.Content) == "" {
		return errs.ErrArgs.WrapMsg("content required")
	}
	if len(req.Content) > maxContentLen {
		return errs.ErrArgs.WrapMsg("content too long", "len", len(req.Content))
	}
	if req.IsEncrypted && (req.EncryptedAESKey == "" || req.IV == "") {
		return errs.ErrArgs.WrapMsg("encrypted message needs encryptedAESKey and iv")
	}
	return nil
}

// Conversation 两人之间的最近消息，正序
func (s *MessageService) Conversation(ctx context.Context, userID, peerID int64, limit int) ([]*model.MessageDto, error) {
	if peerID <= 0 {
		return nil, errs.ErrArgs.WrapMsg("peerId required")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	msgs, err := s.store.Conversation(ctx, userID, peerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*model.MessageDto, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToDto())
	}
	return out, nil
}

// MarkRead 把 peer 发给我的消息置为已读
func (s *MessageService) MarkRead(ctx context.Context, userID, peerID int64) (int64, error) {
	if peerID <= 0 {
		return 0, errs.ErrArgs.WrapMsg("peerId required")
	}
	return s.store.MarkRead(ctx, userID, peerID)
}

// PeerOnline 聊天通道上是否在线（本节点视角）
func (s *MessageService) PeerOnline(peerID int64) bool {
	return s.notifier.IsOnline(peerID)
}

// Online 先看本节点，再查 redis 镜像；查询失败按离线处理
func (s *MessageService) Online(ctx context.Context, userID int64) bool {
	if s.PeerOnline(userID) {
		return true
	}
	if s.lookup == nil {
		return false
	}
	ok, err := s.lookup.Online(ctx, userID)
	if err != nil {
		logger.Debug("[Message] presence lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}

// Conversations 会话列表，最近的在前
func (s *MessageService) Conversations(ctx context.Context, userID int64) ([]*model.ConversationDto, error) {
	if userID <= 0 {
		return nil, errs.ErrNoPermission.WrapMsg("unknown user")
	}
	last, err := s.store.LastMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ConversationDto, 0, len(last))
	for _, m := range last {
		peer := m.PeerOf(userID)
		unread, err := s.store.UnreadCount(ctx, userID, peer)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.ConversationDto{
			FriendID:        peer,
			LastMessage:     m.Content,
			LastMessageType: m.MessageType,
			LastMessageTime: m.CreatedAt.Format(model.TimeLayout),
			UnreadCount:     unread,
			IsOnline:        s.Online(ctx, peer),
		})
	}
	return out, nil
}

// UnreadCount peer 发给我的未读数
func (s *MessageService) UnreadCount(ctx context.Context, userID, peerID int64) (int64, error) {
	if peerID <= 0 {
		return 0, errs.ErrArgs.WrapMsg("peerId required")
	}
	return s.store.UnreadCount(ctx, userID, peerID)
}
