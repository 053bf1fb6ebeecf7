package session

import (
	"PPresence/logger"

	"go.uber.org/zap"
)

// Dispatcher 按用户或全量把 payload 写到在线连接。
// 先取快照再遍历；写失败只记录，循环结束后再统一剔除，失败不会传给调用方。
type Dispatcher struct {
	reg     *Registry
	prune   func(Conn)
	metrics *deliveryMetrics
}

// NewDispatcher prune 为空时默认关闭并注销失败的连接
func NewDispatcher(reg *Registry, prune func(Conn)) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		prune:   prune,
		metrics: newDeliveryMetrics(reg.Topic()),
	}
	if d.prune == nil {
		d.prune = func(c Conn) {
			_ = c.Close()
			_, _, _ = reg.Deregister(c)
		}
	}
	return d
}

// SendToUser 返回成功写入的连接数；用户不在线时返回 0 且没有任何副作用
func (d *Dispatcher) SendToUser(userID int64, payload []byte) int {
	conns := d.reg.ConnectionsFor(userID)
	if len(conns) == 0 {
		return 0
	}
	sent, failed := d.deliver(conns, payload)
	d.Prune(failed)
	return sent
}

// BroadcastAll 写给当前 topic 的所有连接，用于在线状态广播
func (d *Dispatcher) BroadcastAll(payload []byte) int {
	conns := d.reg.Snapshot()
	if len(conns) == 0 {
		return 0
	}
	sent, failed := d.deliver(conns, payload)
	d.Prune(failed)
	return sent
}

// deliver 不做剔除，由调用方决定何时 Prune
func (d *Dispatcher) deliver(conns []Conn, payload []byte) (sent int, failed []Conn) {
	for _, c := range conns {
		if c.State() != StateOpen {
			// 正在关闭的连接，跳过并顺带清理
			failed = append(failed, c)
			continue
		}
		if err := c.Write(payload); err != nil {
			logger.Warn("[Dispatcher] write failed",
				zap.String("topic", d.reg.Topic().String()),
				zap.Int64("user_id", c.UserID()),
				zap.String("conn_id", c.ID()),
				zap.Error(err))
			failed = append(failed, c)
			continue
		}
		sent++
	}
	d.metrics.record(sent, len(failed))
	return sent, failed
}

// Prune 逐个剔除失败连接；重复剔除是无害的
func (d *Dispatcher) Prune(failed []Conn) {
	for _, c := range failed {
		d.prune(c)
	}
}
