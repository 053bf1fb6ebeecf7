package chat

import (
	"context"
	"sync"

	"PPresence/logger"
	"PPresence/service/session"
	"PPresence/tools/safe"

	"go.uber.org/zap"
)

// FrameHandler 处理某一种入站 type，data 为 envelope 里的 data
type FrameHandler func(ctx context.Context, c *WsConn, data map[string]any) error

// FrameRouter 按 envelope.type 分发入站帧；解析失败或没有对应 handler 只记日志
type FrameRouter struct {
	mu       sync.RWMutex
	handlers map[string]FrameHandler
}

func NewFrameRouter() *FrameRouter {
	return &FrameRouter{handlers: make(map[string]FrameHandler)}
}

func (r *FrameRouter) Register(typ string, h FrameHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = h
}

func (r *FrameRouter) handler(typ string) (FrameHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Handle 满足 InboundFunc
func (r *FrameRouter) Handle(ctx context.Context, c *WsConn, raw []byte) {
	env, err := session.DecodeEnvelope(raw)
	if err != nil {
		logger.Warn("[WS] malformed frame",
			zap.String("conn_id", c.ID()),
			zap.Int64("user_id", c.UserID()),
			zap.ByteString("sample", sample(raw)),
			zap.Int("len", len(raw)),
			zap.Error(err))
		return
	}
	h, ok := r.handler(env.Type)
	if !ok {
		logger.Info("[WS] no handler for frame", zap.String("type", env.Type), zap.String("conn_id", c.ID()))
		return
	}
	// 业务 handler panic 只记日志，连接继续读
	safe.Run("ws-frame-"+env.Type, func() {
		if err := h(ctx, c, env.Data); err != nil {
			logger.Warn("[WS] frame handler failed",
				zap.String("type", env.Type),
				zap.String("conn_id", c.ID()),
				zap.Int64("user_id", c.UserID()),
				zap.Error(err))
		}
	})
}

// LogInbound 好友请求通道不处理上行数据，只记录
func LogInbound(_ context.Context, c *WsConn, raw []byte) {
	logger.Info("[WS] inbound text",
		zap.String("topic", c.Topic().String()),
		zap.Int64("user_id", c.UserID()),
		zap.ByteString("sample", sample(raw)))
}

// 只打印简短样本
func sample(data []byte) []byte {
	if len(data) > 256 {
		return data[:256]
	}
	return data
}
