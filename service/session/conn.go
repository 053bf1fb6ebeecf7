package session

// Topic 逻辑通道，每个 topic 各自一份 Registry，互不影响
type Topic string

const (
	TopicChat           Topic = "chat"
	TopicFriendRequests Topic = "friend-requests"
)

func (t Topic) String() string { return string(t) }

// State 连接生命周期：CONNECTING -> OPEN -> CLOSED，CLOSED 为终态
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn 一条已认证的长连接。
//
// Write 必须在有界时间内返回，并保证同一连接上的写入顺序；
// 对已关闭的连接写入要返回错误。Registry 只引用 Conn，从不主动关闭它。
type Conn interface {
	ID() string
	UserID() int64
	Topic() Topic
	State() State
	Write(payload []byte) error
	Close() error
}
