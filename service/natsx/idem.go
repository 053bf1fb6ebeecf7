package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPresence/logger"

	"go.uber.org/zap"
)

// ----- 抽象存储 -----
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// ----- 内存实现（单进程） -----
type MemIdem struct {
	mu   sync.Mutex
	m    map[string]int64 // key -> expireUnixMilli
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func NewMemIdem(defaultTTL time.Duration) *MemIdem {
	mi := &MemIdem{
		m:    make(map[string]int64),
		ttl:  defaultTTL,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	// 清理协程
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-mi.stop:
				return
			case <-t.C:
				mi.sweep()
			}
		}
	}()
	return mi
}

func (mi *MemIdem) sweep() {
	now := mi.now().UnixMilli()
	mi.mu.Lock()
	for k, exp := range mi.m {
		if exp <= now {
			delete(mi.m, k)
		}
	}
	mi.mu.Unlock()
}

func (mi *MemIdem) Close() {
	mi.once.Do(func() { close(mi.stop) })
}

func (mi *MemIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if old, ok := mi.m[key]; ok && old > now.UnixMilli() {
		return true, nil // 已见过
	}
	mi.m[key] = now.Add(ttl).UnixMilli()
	return false, nil
}

// ----- 从消息头提取 msgID -----
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{HeaderMsgID, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NatsxIdemMiddleware 按 msgID 去重，重复消息直接跳过
// 用法：NewNatsxConsumer(client, NatsxIdemMiddleware(store, ttl))
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				// 无ID时根据 subject+内容构造一个弱ID
				id = msg.Subject + "|" + strings.TrimSpace(string(msg.Data))
			}
			seen, err := store.SeenOnce(id, ttl)
			if err != nil {
				logger.Warn("[NATS] idem store failed", zap.Error(err))
			}
			if seen {
				logger.Debug("[NATS] duplicate skipped", zap.String("subject", msg.Subject), zap.String("msg_id", id))
				return nil
			}
			return next(ctx, msg)
		}
	}
}
