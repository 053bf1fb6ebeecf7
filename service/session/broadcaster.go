package session

import (
	"sync"
	"time"

	"PPresence/logger"
	"PPresence/tools/safe"

	"go.uber.org/zap"
)

// broadcastJob 一次上下线广播：收件人在状态变更时取快照，投递交给后台 worker
type broadcastJob struct {
	typ     string
	userID  int64
	payload []byte
	conns   []Conn
}

// broadcaster 每个 hub 一个有序广播队列，单 worker 按入队顺序投递。
// 入队不阻塞，慢连接只拖慢 worker，不会卡住分段锁上的注册/注销。
type broadcaster struct {
	topic Topic
	disp  *Dispatcher

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []broadcastJob
	busy   bool
	closed bool
	done   chan struct{}
}

func newBroadcaster(disp *Dispatcher) *broadcaster {
	b := &broadcaster{
		topic: disp.reg.Topic(),
		disp:  disp,
		done:  make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	safe.SafeGo("presence-broadcast-"+b.topic.String(), b.run)
	return b
}

// enqueue 关闭后返回 false
func (b *broadcaster) enqueue(job broadcastJob) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.queue = append(b.queue, job)
	b.cond.Broadcast()
	return true
}

func (b *broadcaster) run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			dropped := len(b.queue)
			b.queue = nil
			b.mu.Unlock()
			if dropped > 0 {
				logger.Warn("[Presence] broadcaster closed with pending jobs",
					zap.String("topic", b.topic.String()), zap.Int("dropped", dropped))
			}
			return
		}
		job := b.queue[0]
		b.queue[0] = broadcastJob{}
		b.queue = b.queue[1:]
		b.busy = true
		b.mu.Unlock()

		safe.Run("presence-broadcast", func() { b.deliver(job) })

		b.mu.Lock()
		b.busy = false
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

// deliver 剔除会再次进入 Disconnect 并可能追加 OFFLINE 任务，此时不持有任何锁
func (b *broadcaster) deliver(job broadcastJob) {
	sent, failed := b.disp.deliver(job.conns, job.payload)
	logger.Info("[Presence] broadcast",
		zap.String("topic", b.topic.String()),
		zap.String("type", job.typ),
		zap.Int64("user_id", job.userID),
		zap.Int("delivered", sent),
		zap.Int("failed", len(failed)))
	b.disp.Prune(failed)
}

// flush 等队列清空且 worker 空闲；超时返回 false
func (b *broadcaster) flush(wait time.Duration) bool {
	idle := make(chan struct{})
	safe.SafeGo("presence-broadcast-flush", func() {
		b.mu.Lock()
		for (len(b.queue) > 0 || b.busy) && !b.closed {
			b.cond.Wait()
		}
		b.mu.Unlock()
		close(idle)
	})
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-idle:
		return true
	case <-t.C:
		return false
	}
}

// close 停止 worker，未投递的任务直接丢弃
func (b *broadcaster) close(wait time.Duration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-time.After(wait):
		logger.Warn("[Presence] broadcaster stop timeout", zap.String("topic", b.topic.String()))
	}
}
