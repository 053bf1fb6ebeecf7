package global

import (
	"strconv"
)

// PresenceKey redis 中某个 topic 下用户的在线表：field=网关ID，value=最后续期时间
func PresenceKey(topic string, userID int64) string {
	return "im:presence:" + topic + ":" + strconv.FormatInt(userID, 10)
}

// TopicKeyUser kafka 按用户分区的 key，同一用户的事件落在同一分区保证有序
func TopicKeyUser(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// DeliverSubject 跨节点投递的 nats subject，每个网关都订阅
func DeliverSubject(topic string) string {
	return "deliver." + topic
}

// PresenceSubject 在线状态变化广播到其他节点的 nats subject
func PresenceSubject(topic string) string {
	return "presence." + topic
}
