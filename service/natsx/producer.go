package natsx

import (
	"context"

	"PPresence/tools/errs"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const HeaderMsgID = "Nats-Msg-Id"

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 按 Biz 路由发送
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return errs.ErrArgs.WrapMsg("route not found", "biz", biz)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(r.Subject)
	msg.Data = data
	msg.Header = toHeader(hdr)
	if err := p.c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "publish failed", "subject", r.Subject)
	}
	return nil
}

// PublishOnce 带 Nats-Msg-Id 发布，msgID 为空则生成 uuid；消费端用 NatsxIdemMiddleware 去重
func (p *NatsxProducer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) (string, error) {
	hdr = withMsgID(hdr, msgID)
	return hdr[HeaderMsgID], p.Publish(ctx, biz, data, hdr)
}

func withMsgID(hdr map[string]string, msgID string) map[string]string {
	out := make(map[string]string, len(hdr)+1)
	for k, v := range hdr {
		out[k] = v
	}
	if msgID == "" {
		msgID = uuid.NewString()
	}
	out[HeaderMsgID] = msgID
	return out
}
