package natsx

import (
	"context"
	"time"

	"PPresence/tools/errs"
)

const defaultBackoff = 100 * time.Millisecond

// NatsManager 统一门面：对外只暴露这一个对象来用
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
	sync     *NatsxSyncPublisher
}

// NewNatsManager 初始化
func NewNatsManager(cfg NatsxConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	p := NewNatsxProducer(c)
	return &NatsManager{
		client:   c,
		producer: p,
		consumer: NewNatsxConsumer(c, middlewares...),
		sync:     &NatsxSyncPublisher{P: p, Retries: 2, Backoff: cfgBackoff(cfg)},
	}, nil
}

func cfgBackoff(cfg NatsxConfig) time.Duration {
	if cfg.ReconnectWait > 0 {
		return cfg.ReconnectWait / 5
	}
	return defaultBackoff
}

// Close 释放资源（优雅关闭订阅与连接）
func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// RegisterRoute 注册业务路由（biz -> subject / queue）
func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if m == nil || m.client == nil {
		return errs.ErrInternalServer.WrapMsg("nats manager not initialized")
	}
	return m.client.RegisterRoute(r)
}

// Publish 生产消息（按 biz 路由）
func (m *NatsManager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return errs.ErrInternalServer.WrapMsg("nats manager not initialized")
	}
	return m.producer.Publish(ctx, biz, data, hdr)
}

// PublishOnce 带 Nats-Msg-Id 发布，失败按配置重试，重试不换 msgID
func (m *NatsManager) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.sync == nil {
		return errs.ErrInternalServer.WrapMsg("nats manager not initialized")
	}
	return m.sync.PublishOnce(ctx, biz, data, hdr)
}

// Subscribe 订阅，同组内用 Queue 分摊；广播则 Queue 置空
func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if m == nil || m.consumer == nil {
		return errs.ErrInternalServer.WrapMsg("nats manager not initialized")
	}
	return m.consumer.Subscribe(biz, h)
}
