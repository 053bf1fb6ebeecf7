package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PPresence/logger"
	"PPresence/module/friend/model"
	"PPresence/module/friend/store"
	"PPresence/tools/errs"

	"go.uber.org/zap"
)

const (
	NoticeReceived = "received"
	NoticeAccepted = "accepted"
	NoticeRejected = "rejected"

	maxNoteLen = 256
)

// Notifier friend-requests 通道，*session.Hub 满足
type Notifier interface {
	SendText(userID int64, text string) int
}

// Notice friend_request:<kind>:<requestId>:<actorUserId>
func Notice(kind string, requestID, actor int64) string {
	return fmt.Sprintf("friend_request:%s:%d:%d", kind, requestID, actor)
}

type FriendService struct {
	store    store.Store
	notifier Notifier
}

func NewFriendService(st store.Store, n Notifier) *FriendService {
	return &FriendService{store: st, notifier: n}
}

// SendRequest 落库后通知被申请人
func (s *FriendService) SendRequest(ctx context.Context, from, to int64, note string) (*model.Request, error) {
	if from <= 0 {
		return nil, errs.ErrNoPermission.WrapMsg("unknown user")
	}
	if to <= 0 || to == from {
		return nil, errs.ErrArgs.WrapMsg("bad toUserId", "toUserId", to)
	}
	note = strings.TrimSpace(note)
	if len(note) > maxNoteLen {
		return nil, errs.ErrArgs.WrapMsg("note too long")
	}
	dup, err := s.store.HasPending(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, errs.ErrStateConflict.WrapMsg("request already pending", "from", from, "to", to)
	}

	r := &model.Request{FromUserID: from, ToUserID: to, Note: note, Status: model.StatusPending}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.notify(to, NoticeReceived, r.ID, from)
	return r, nil
}

func (s *FriendService) Accept(ctx context.Context, actor, requestID int64) (*model.Request, error) {
	return s.handle(ctx, actor, requestID, model.StatusAccepted, NoticeAccepted)
}

func (s *FriendService) Reject(ctx context.Context, actor, requestID int64) (*model.Request, error) {
	return s.handle(ctx, actor, requestID, model.StatusRejected, NoticeRejected)
}

// handle 只有被申请人能处理 pending 的申请，成功后通知发起人
func (s *FriendService) handle(ctx context.Context, actor, requestID int64, to model.Status, kind string) (*model.Request, error) {
	r, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.ToUserID != actor {
		return nil, errs.ErrNoPermission.WrapMsg("only the addressee can handle this request", "id", requestID)
	}
	if r.Status != model.StatusPending {
		return nil, errs.ErrStateConflict.WrapMsg("friend request already handled", "id", requestID, "status", r.Status)
	}
	now := time.Now()
	if err := s.store.Transition(ctx, requestID, to, now); err != nil {
		return nil, err
	}
	r.Status = to
	r.HandledAt = &now
	s.notify(r.FromUserID, kind, r.ID, actor)
	return r, nil
}

func (s *FriendService) notify(userID int64, kind string, requestID, actor int64) {
	n := s.notifier.SendText(userID, Notice(kind, requestID, actor))
	logger.Debug("[Friend] notice",
		zap.String("kind", kind),
		zap.Int64("request_id", requestID),
		zap.Int64("user_id", userID),
		zap.Int("delivered", n))
}
