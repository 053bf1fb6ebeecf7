package chat

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"time"

	"PPresence/logger"
	midsec "PPresence/middleware/security"
	"PPresence/service/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CloseUnauthorized 鉴权失败的关闭码（4000-4999 为应用自定义段）
const CloseUnauthorized = 4401

var (
	heartbeatPing = []byte("ping")
	heartbeatPong = []byte("pong")
)

// InboundFunc 处理非心跳的文本帧
type InboundFunc func(ctx context.Context, c *WsConn, raw []byte)

// Handler 一个 topic 的 websocket 入口：握手鉴权、注册、读循环、关闭注销
type Handler struct {
	hub      *session.Hub
	verifier midsec.TokenVerifier
	conf     ConnConf
	upgrader websocket.Upgrader
	tokenOpt *midsec.Options
	inbound  InboundFunc
}

type HandlerOption func(*Handler)

func WithInbound(f InboundFunc) HandlerOption {
	return func(h *Handler) { h.inbound = f }
}

func WithCheckOrigin(f func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) { h.upgrader.CheckOrigin = f }
}

func NewHandler(hub *session.Hub, verifier midsec.TokenVerifier, conf ConnConf, opts ...HandlerOption) *Handler {
	conf.norm()
	h := &Handler{
		hub:      hub,
		verifier: verifier,
		conf:     conf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tokenOpt: midsec.DefaultOptions(),
		inbound:  LogInbound,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HandleWS gin 路由入口
func (h *Handler) HandleWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/Origin 不允许，Upgrade 已经写回 HTTP 错误
		logger.Infof("[WS] upgrade failed topic=%s err=%v", h.hub.Topic(), err)
		return
	}

	userID, err := h.verifier.VerifyToken(midsec.TokenFromRequest(c.Request, h.tokenOpt))
	if err != nil {
		logger.Warn("[WS] unauthorized",
			zap.String("topic", h.hub.Topic().String()),
			zap.String("remote", ws.RemoteAddr().String()),
			zap.Error(err))
		rejectUnauthorized(ws)
		return
	}

	conn := newWsConn(ws, userID, h.hub.Topic(), h.conf)
	conn.open()
	n, err := h.hub.Connect(conn)
	if err != nil {
		logger.Warn("[WS] register failed", zap.Int64("user_id", userID), zap.Error(err))
		_ = conn.CloseWith(websocket.CloseTryAgainLater, "unavailable")
		return
	}
	logger.Info("[WS] connected",
		zap.String("topic", h.hub.Topic().String()),
		zap.Int64("user_id", userID),
		zap.String("conn_id", conn.ID()),
		zap.Int("sessions", n))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		// 先注销再关闭，关闭回调返回前 Registry 里已经没有这条连接
		remaining := h.hub.Disconnect(conn)
		_ = conn.Close()
		logger.Info("[WS] disconnected",
			zap.String("topic", h.hub.Topic().String()),
			zap.Int64("user_id", userID),
			zap.String("conn_id", conn.ID()),
			zap.Stringer("remote", conn.Remote()),
			zap.Duration("age", time.Since(conn.CreatedAt())),
			zap.Duration("idle", time.Since(conn.LastHeartbeat())),
			zap.Int("sessions", remaining))
	}()

	h.readLoop(ctx, conn)
}

func (h *Handler) readLoop(ctx context.Context, conn *WsConn) {
	ws := conn.ws
	ws.SetReadLimit(h.conf.MaxMessageSize)
	extend := func() {
		conn.touch()
		_ = ws.SetReadDeadline(time.Now().Add(h.conf.PongWait))
	}
	extend()
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			logReadErr(conn, err)
			return
		}
		extend()

		if mt != websocket.TextMessage {
			logger.Debug("[WS] ignore non-text frame", zap.String("conn_id", conn.ID()), zap.Int("type", mt))
			continue
		}
		// 应用层心跳，不记日志、不碰 Registry
		if bytes.Equal(data, heartbeatPing) {
			_ = conn.Write(heartbeatPong)
			continue
		}
		h.inbound(ctx, conn, data)
	}
}

func logReadErr(conn *WsConn, err error) {
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		logger.Infof("[WS] peer closed conn=%s user=%d err=%v", conn.ID(), conn.UserID(), err)
	case isTimeout(err):
		logger.Infof("[WS] read timeout conn=%s user=%d err=%v", conn.ID(), conn.UserID(), err)
	case conn.State() == session.StateClosed:
		// 服务端主动关闭（剔除/停机）
		logger.Debugf("[WS] read stopped conn=%s user=%d", conn.ID(), conn.UserID())
	default:
		logger.Infof("[WS] read err conn=%s user=%d err=%v", conn.ID(), conn.UserID(), err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func rejectUnauthorized(ws *websocket.Conn) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseUnauthorized, "unauthorized"),
		time.Now().Add(closeWriteWait))
	_ = ws.Close()
}
