package chat

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"PPresence/global"
	"PPresence/logger"
	"PPresence/service/session"
	"PPresence/tools/ids"
	"PPresence/tools/safe"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrConnClosed   = errors.New("ws: connection closed")
	ErrSlowConsumer = errors.New("ws: send queue full")
)

const closeWriteWait = 500 * time.Millisecond

// ===== 配置 =====

type ConnConf struct {
	SendQueue      int           // 每连接发送队列长度
	WriteWait      time.Duration // 单次写超时
	PongWait       time.Duration // 读超时
	PingInterval   time.Duration // 控制帧 ping 间隔
	EnqueueWait    time.Duration // 队列满时的最长等待
	MaxMessageSize int64
}

func ConnConfFrom(c global.ConnConfig) ConnConf {
	conf := ConnConf{
		SendQueue:      c.SendQueue,
		WriteWait:      c.WriteWait,
		PongWait:       c.PongWait,
		PingInterval:   c.PingInterval,
		EnqueueWait:    c.EnqueueWait,
		MaxMessageSize: c.MaxMessageSize,
	}
	conf.norm()
	return conf
}

func (c *ConnConf) norm() {
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.EnqueueWait <= 0 {
		c.EnqueueWait = 50 * time.Millisecond
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
}

// ===== 连接 =====

// WsConn 基于 gorilla 的 session.Conn 实现。
// 所有业务写入走 send 队列，由唯一的 writePump 落到 socket，保证单连接有序；
// 队列满时最多等 EnqueueWait，慢连接只会让自己失败。
type WsConn struct {
	id     string
	userID int64
	topic  session.Topic

	ws     *websocket.Conn
	remote net.Addr
	conf   ConnConf

	send      chan []byte
	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}

	createdAt time.Time
	heartbeat atomic.Int64 // 最近一次收到数据的时间（UnixNano）
}

func newWsConn(ws *websocket.Conn, userID int64, topic session.Topic, conf ConnConf) *WsConn {
	conf.norm()
	c := &WsConn{
		id:        ids.GenerateString(),
		userID:    userID,
		topic:     topic,
		ws:        ws,
		remote:    ws.RemoteAddr(),
		conf:      conf,
		send:      make(chan []byte, conf.SendQueue),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	c.state.Store(int32(session.StateConnecting))
	c.touch()
	return c
}

// open 进入 OPEN 并启动写协程
func (c *WsConn) open() {
	if c.state.CompareAndSwap(int32(session.StateConnecting), int32(session.StateOpen)) {
		safe.SafeGo("ws-write-pump", c.writePump)
	}
}

func (c *WsConn) ID() string { return c.id }
func (c *WsConn) UserID() int64 { return c.userID }
func (c *WsConn) Topic() session.Topic { return c.topic }
func (c *WsConn) State() session.State { return session.State(c.state.Load()) }
func (c *WsConn) Remote() net.Addr { return c.remote }
func (c *WsConn) CreatedAt() time.Time { return c.createdAt }
func (c *WsConn) LastHeartbeat() time.Time { return time.Unix(0, c.heartbeat.Load()) }

func (c *WsConn) touch() { c.heartbeat.Store(time.Now().UnixNano()) }

// Write 入队，不直接写 socket
func (c *WsConn) Write(p []byte) error {
	if c.State() != session.StateOpen {
		return ErrConnClosed
	}
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- p:
		return nil
	default:
	}

	t := time.NewTimer(c.conf.EnqueueWait)
	defer t.Stop()
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- p:
		return nil
	case <-t.C:
		return errors.Wrapf(ErrSlowConsumer, "conn=%s queued=%d", c.id, len(c.send))
	}
}

func (c *WsConn) Close() error {
	return c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith 发送关闭帧后断开；可并发、可重复调用
func (c *WsConn) CloseWith(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(session.StateClosed))
		close(c.done)
		// WriteControl 可以和 writePump 并发
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(closeWriteWait))
		err = c.ws.Close()
	})
	return err
}

func (c *WsConn) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case p := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
				logger.Info("[WS] write failed, closing",
					zap.String("conn_id", c.id), zap.Int64("user_id", c.userID), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.conf.WriteWait)); err != nil {
				logger.Info("[WS] ping failed, closing",
					zap.String("conn_id", c.id), zap.Int64("user_id", c.userID), zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}
