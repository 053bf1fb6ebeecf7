package storage

import (
	"context"
	"strconv"
	"time"

	"PPresence/global"
	"PPresence/logger"
	"PPresence/service/session"
	"PPresence/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 上线：写本节点 field 并续期整个 key
// KEYS[1] = im:presence:<topic>:<user>
// ARGV[1] = nodeId
// ARGV[2] = nowMillis
// ARGV[3] = ttlMillis
const luaMarkOnline = `
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[3]))
return 1
`

// 下线：删本节点 field，没有其他节点了就删 key
// KEYS[1] = im:presence:<topic>:<user>
// ARGV[1] = nodeId
// 返回：剩余节点数
const luaMarkOffline = `
redis.call("HDEL", KEYS[1], ARGV[1])
local left = redis.call("HLEN", KEYS[1])
if left == 0 then
  redis.call("DEL", KEYS[1])
end
return left
`

const (
	defaultPresenceTTL = 90 * time.Second
	opTimeout          = 2 * time.Second
)

// RedisPresence 把本节点的在线状态镜像到 redis，供其他节点查询。
// 同一个用户可能同时连在多个网关上，所以用 hash：field=网关ID，value=最后续期时间(ms)。
type RedisPresence struct {
	rdb    redis.Cmdable
	nodeID string
	ttl    time.Duration
	now    func() time.Time

	online  *redis.Script
	offline *redis.Script
}

func NewRedisPresence(rdb redis.Cmdable, nodeID string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &RedisPresence{
		rdb:     rdb,
		nodeID:  nodeID,
		ttl:     ttl,
		now:     time.Now,
		online:  redis.NewScript(luaMarkOnline),
		offline: redis.NewScript(luaMarkOffline),
	}
}

func (p *RedisPresence) TTL() time.Duration { return p.ttl }

// OnPresence 实现 session.Observer
func (p *RedisPresence) OnPresence(ctx context.Context, ev session.Event) {
	var err error
	if ev.Online() {
		err = p.MarkOnline(ctx, ev.Topic.String(), ev.UserID)
	} else {
		_, err = p.MarkOffline(ctx, ev.Topic.String(), ev.UserID)
	}
	if err != nil {
		logger.Warn("[Redis] presence mirror failed",
			zap.String("topic", ev.Topic.String()),
			zap.String("type", ev.Type),
			zap.Int64("user_id", ev.UserID),
			zap.Error(err))
	}
}

func (p *RedisPresence) MarkOnline(ctx context.Context, topic string, userID int64) error {
	key := global.PresenceKey(topic, userID)
	err := p.online.Run(ctx, p.rdb, []string{key}, p.nodeID, p.now().UnixMilli(), p.ttl.Milliseconds()).Err()
	if err != nil {
		return errs.WrapMsg(err, "mark online", "key", key)
	}
	return nil
}

// MarkOffline 返回该用户仍在线的其他节点数
func (p *RedisPresence) MarkOffline(ctx context.Context, topic string, userID int64) (int64, error) {
	key := global.PresenceKey(topic, userID)
	left, err := p.offline.Run(ctx, p.rdb, []string{key}, p.nodeID).Int64()
	if err != nil {
		return 0, errs.WrapMsg(err, "mark offline", "key", key)
	}
	return left, nil
}

// Nodes 用户当前所在的网关，超过 ttl 没续期的节点视为已失效
func (p *RedisPresence) Nodes(ctx context.Context, topic string, userID int64) ([]string, error) {
	vals, err := p.rdb.HGetAll(ctx, global.PresenceKey(topic, userID)).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence lookup", "user_id", userID)
	}
	cutoff := p.now().Add(-p.ttl).UnixMilli()
	nodes := make([]string, 0, len(vals))
	for node, ts := range vals {
		ms, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || ms < cutoff {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (p *RedisPresence) OnlineIn(ctx context.Context, topic string, userID int64) (bool, error) {
	nodes, err := p.Nodes(ctx, topic, userID)
	return len(nodes) > 0, err
}

// Refresh 批量续期本节点上的在线用户
func (p *RedisPresence) Refresh(ctx context.Context, topic string, users []int64) error {
	if len(users) == 0 {
		return nil
	}
	now := p.now().UnixMilli()
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, uid := range users {
			key := global.PresenceKey(topic, uid)
			pipe.HSet(ctx, key, p.nodeID, now)
			pipe.PExpire(ctx, key, p.ttl)
		}
		return nil
	})
	if err != nil {
		return errs.WrapMsg(err, "refresh presence", "topic", topic, "users", len(users))
	}
	return nil
}

// RunRefresher 每 ttl/3 把 hubs 里的在线用户续期一次，ctx 结束退出
func (p *RedisPresence) RunRefresher(ctx context.Context, hubs []*session.Hub) {
	ticker := time.NewTicker(p.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, h := range hubs {
				rctx, cancel := context.WithTimeout(ctx, opTimeout)
				if err := p.Refresh(rctx, h.Topic().String(), h.OnlineUsers()); err != nil {
					logger.Warn("[Redis] presence refresh failed", zap.String("topic", h.Topic().String()), zap.Error(err))
				}
				cancel()
			}
		}
	}
}

// Lookup 绑定到某个 topic 的只读视图
func (p *RedisPresence) Lookup(topic session.Topic) *TopicLookup {
	return &TopicLookup{p: p, topic: topic.String()}
}

type TopicLookup struct {
	p     *RedisPresence
	topic string
}

func (l *TopicLookup) Online(ctx context.Context, userID int64) (bool, error) {
	return l.p.OnlineIn(ctx, l.topic, userID)
}
