package model

import "time"

const (
	MessageCollection = "message"

	TypeText  = "TEXT"
	TypeImage = "IMAGE"
	TypeFile  = "FILE"

	// 对外 JSON 的时间格式
	TimeLayout = "2006-01-02 15:04:05"
)

// Message 单聊消息，落库后才会推送
type Message struct {
	ID              int64     `bson:"_id"`
	SenderID        int64     `bson:"sender_id"`
	ReceiverID      int64     `bson:"receiver_id"`
	Content         string    `bson:"content"`
	MessageType     string    `bson:"message_type"`
	IsRead          bool      `bson:"is_read"`
	IsEncrypted     bool      `bson:"is_encrypted"`
	EncryptedAESKey string    `bson:"encrypted_aes_key,omitempty"` // 端到端加密时，用接收方公钥加密的 AES key
	IV              string    `bson:"iv,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// MessageDto NEW_MESSAGE 事件的 data，也是 HTTP 接口的返回
type MessageDto struct {
	ID              int64  `json:"id"`
	SenderID        int64  `json:"senderId"`
	ReceiverID      int64  `json:"receiverId"`
	Content         string `json:"content"`
	MessageType     string `json:"messageType"`
	IsRead          bool   `json:"isRead"`
	IsEncrypted     bool   `json:"isEncrypted"`
	EncryptedAESKey string `json:"encryptedAESKey,omitempty"`
	IV              string `json:"iv,omitempty"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// SendMessageDto 发送请求（HTTP body 或 SEND_MESSAGE 帧的 data）
type SendMessageDto struct {
	ReceiverID      int64  `json:"receiverId"`
	Content         string `json:"content"`
	MessageType     string `json:"messageType"`
	IsEncrypted     bool   `json:"isEncrypted"`
	EncryptedAESKey string `json:"encryptedAESKey"`
	IV              string `json:"iv"`
}

func (m *Message) ToDto() *MessageDto {
	return &MessageDto{
		ID:              m.ID,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Content:         m.Content,
		MessageType:     m.MessageType,
		IsRead:          m.IsRead,
		IsEncrypted:     m.IsEncrypted,
		EncryptedAESKey: m.EncryptedAESKey,
		IV:              m.IV,
		CreatedAt:       m.CreatedAt.Format(TimeLayout),
		UpdatedAt:       m.UpdatedAt.Format(TimeLayout),
	}
}

// ConversationDto 会话列表的一项：对方、最后一条消息、未读数和对方在线状态
type ConversationDto struct {
	FriendID        int64  `json:"friendId"`
	LastMessage     string `json:"lastMessage"`
	LastMessageType string `json:"lastMessageType"`
	LastMessageTime string `json:"lastMessageTime"`
	UnreadCount     int64  `json:"unreadCount"`
	IsOnline        bool   `json:"isOnline"`
}

// PeerOf 消息里 userID 之外的另一方
func (m *Message) PeerOf(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
