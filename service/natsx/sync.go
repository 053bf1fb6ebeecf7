package natsx

import (
	"context"
	"time"
)

// NatsxSyncPublisher 同步发布器（带重试），重试共用同一个 msgID
type NatsxSyncPublisher struct {
	P       *NatsxProducer
	Retries int
	Backoff time.Duration
}

func (sp *NatsxSyncPublisher) PublishOnce(ctx context.Context, biz string, payload []byte, hdr map[string]string) error {
	hdr = withMsgID(hdr, "")
	var err error
	for i := 0; i <= sp.Retries; i++ {
		if _, err = sp.P.PublishOnce(ctx, biz, payload, hdr, hdr[HeaderMsgID]); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sp.Backoff):
		}
	}
	return err
}
