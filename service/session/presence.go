package session

import (
	"context"
	"sync"
	"time"

	"PPresence/logger"
	"PPresence/tools/safe"

	"go.uber.org/zap"
)

const (
	stripeCount          = 64
	defaultObserverQueue = 1024
	observerTimeout      = 3 * time.Second
)

// Observer 订阅在线状态变化（redis 镜像、nats 广播、kafka 审计等）。
// 每个 Observer 有自己的有序队列，回调在独立 goroutine 中执行。
type Observer interface {
	OnPresence(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) OnPresence(ctx context.Context, ev Event) { f(ctx, ev) }

// Presence 包在 Registry 外面：注册后计数为 1 广播上线，注销后计数为 0 广播下线。
// 同一用户的变更由分段锁串行化；锁内只做计数和入队，投递由 broadcaster 在锁外完成。
type Presence struct {
	reg       *Registry
	disp      *Dispatcher
	out       *broadcaster // 不广播的 topic 为 nil
	queueSize int

	stripes [stripeCount]sync.Mutex

	obsMu     sync.RWMutex
	observers []*observerQueue
	closed    bool
}

func NewPresence(reg *Registry, disp *Dispatcher, broadcast bool, queueSize int) *Presence {
	if queueSize <= 0 {
		queueSize = defaultObserverQueue
	}
	p := &Presence{
		reg:       reg,
		disp:      disp,
		queueSize: queueSize,
	}
	if broadcast {
		p.out = newBroadcaster(disp)
	}
	return p
}

func (p *Presence) stripe(userID int64) *sync.Mutex {
	return &p.stripes[uint64(userID)%stripeCount]
}

// Connect 注册连接，首个连接触发 USER_ONLINE
func (p *Presence) Connect(c Conn) (int, error) {
	if c == nil {
		return 0, ErrInvalidSession
	}
	mu := p.stripe(c.UserID())
	mu.Lock()
	defer mu.Unlock()
	n, added, err := p.reg.register(c.UserID(), c)
	if err == nil && added {
		p.disp.metrics.connDelta(1)
		if n == 1 {
			p.emit(c, TypeUserOnline, n)
		}
	}
	return n, err
}

// Disconnect 注销连接，最后一个连接触发 USER_OFFLINE；重复调用返回 ErrNotRegistered
func (p *Presence) Disconnect(c Conn) (int, error) {
	if c == nil {
		return 0, ErrNotRegistered
	}
	mu := p.stripe(c.UserID())
	mu.Lock()
	defer mu.Unlock()
	_, remaining, err := p.reg.Deregister(c)
	if err == nil {
		p.disp.metrics.connDelta(-1)
		if remaining == 0 {
			p.emit(c, TypeUserOffline, 0)
		}
	}
	return remaining, err
}

// emit 必须在该用户的分段锁内调用。收件人在此刻取快照，入队后立即返回。
func (p *Presence) emit(c Conn, typ string, sessions int) {
	ev := Event{
		Topic:    p.reg.Topic(),
		Type:     typ,
		UserID:   c.UserID(),
		ConnID:   c.ID(),
		Sessions: sessions,
		At:       time.Now(),
	}
	p.notify(ev)

	if p.out == nil {
		logger.Debug("[Presence] transition",
			zap.String("topic", ev.Topic.String()), zap.String("type", typ), zap.Int64("user_id", ev.UserID))
		return
	}

	payload, err := EncodeEnvelope(typ, PresenceData{UserID: ev.UserID, IsOnline: ev.Online()})
	if err != nil {
		logger.Error("[Presence] encode failed", zap.Error(err))
		return
	}
	p.out.enqueue(broadcastJob{
		typ:     typ,
		userID:  ev.UserID,
		payload: payload,
		conns:   p.reg.Snapshot(),
	})
}

// Flush 等待已入队的广播投递完，超时返回 false
func (p *Presence) Flush(wait time.Duration) bool {
	if p.out == nil {
		return true
	}
	return p.out.flush(wait)
}

// AddObserver 注册观察者；Close 之后再注册直接忽略
func (p *Presence) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	if p.closed {
		return
	}
	p.observers = append(p.observers, newObserverQueue(p.reg.Topic(), obs, p.queueSize))
}

func (p *Presence) notify(ev Event) {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	if p.closed {
		return
	}
	for _, q := range p.observers {
		q.push(ev)
	}
}

// Close 停止广播并关闭观察者队列，已入队的观察者事件会处理完（最多等待 wait）
func (p *Presence) Close(wait time.Duration) {
	if p.out != nil {
		p.out.close(wait)
	}
	p.obsMu.Lock()
	if p.closed {
		p.obsMu.Unlock()
		return
	}
	p.closed = true
	queues := p.observers
	p.observers = nil
	for _, q := range queues {
		close(q.ch)
	}
	p.obsMu.Unlock()

	deadline := time.After(wait)
	for _, q := range queues {
		select {
		case <-q.done:
		case <-deadline:
			logger.Warn("[Presence] observer drain timeout", zap.String("topic", p.reg.Topic().String()))
			return
		}
	}
}

type observerQueue struct {
	topic Topic
	obs   Observer
	ch    chan Event
	done  chan struct{}
}

func newObserverQueue(topic Topic, obs Observer, size int) *observerQueue {
	q := &observerQueue{
		topic: topic,
		obs:   obs,
		ch:    make(chan Event, size),
		done:  make(chan struct{}),
	}
	safe.SafeGo("presence-observer-"+topic.String(), q.run)
	return q
}

func (q *observerQueue) push(ev Event) {
	select {
	case q.ch <- ev:
	default:
		logger.Warn("[Presence] observer queue full, event dropped",
			zap.String("topic", q.topic.String()),
			zap.String("type", ev.Type),
			zap.Int64("user_id", ev.UserID))
	}
}

func (q *observerQueue) run() {
	defer close(q.done)
	for ev := range q.ch {
		ev := ev
		safe.Run("presence-observer", func() {
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			defer cancel()
			q.obs.OnPresence(ctx, ev)
		})
	}
}
