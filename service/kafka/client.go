package kafka

import (
	"PPresence/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// Producer 同步生产者及其底层 client，关闭时一起释放
type Producer struct {
	client sarama.Client
	sarama.SyncProducer
}

// NewProducer 建 client，按需建 topic，再建同步生产者
func NewProducer(c Config) (*Producer, error) {
	if len(c.Brokers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("kafka brokers missing")
	}
	client, err := sarama.NewClient(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		glog.Infof("[Kafka][ERR] init client: %v", err)
		return nil, errs.WrapMsg(err, "kafka client", "brokers", c.Brokers)
	}

	if c.EnsureTopicOnStart {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			glog.Infof("[Kafka][ERR] create admin: %v", err)
		} else if err := EnsureTopics(admin, []string{c.PresenceTopic}, c); err != nil {
			glog.Infof("[Kafka][ERR] ensure topics: %v", err)
		}
		// admin 与 producer 共用 client，这里不关 admin
	}

	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		glog.Infof("[Kafka][ERR] init producer: %v", err)
		return nil, errs.WrapMsg(err, "kafka producer")
	}
	glog.Infof("[Kafka] producer ready brokers=%v topic=%s", c.Brokers, c.PresenceTopic)
	return &Producer{client: client, SyncProducer: p}, nil
}

func (p *Producer) Close() error {
	err := p.SyncProducer.Close()
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	return err
}
