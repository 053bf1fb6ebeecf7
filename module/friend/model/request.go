package model

import "time"

const TableFriendRequest = "friend_request"

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Request 好友申请，FromUserID 发起，ToUserID 处理
type Request struct {
	ID         int64      `json:"id"`
	FromUserID int64      `json:"fromUserId"`
	ToUserID   int64      `json:"toUserId"`
	Note       string     `json:"note,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	HandledAt  *time.Time `json:"handledAt,omitempty"`
}

type SendRequestDto struct {
	ToUserID int64  `json:"toUserId"`
	Note     string `json:"note"`
}
