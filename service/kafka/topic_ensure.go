package kafka

import (
	"errors"

	"PPresence/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// EnsureTopics 不存在就按配置创建；已存在直接跳过
func EnsureTopics(admin sarama.ClusterAdmin, topics []string, c Config) error {
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err == nil && len(descs) == 1 && descs[0].Err == sarama.ErrNoError {
			glog.Infof("[Topic] exists: %s (partitions=%d)", t, len(descs[0].Partitions))
			continue
		}
		td := &sarama.TopicDetail{
			NumPartitions:     c.PartitionsPerTopic,
			ReplicationFactor: c.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr("1"),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(t, td, false); err != nil {
			var te *sarama.TopicError
			if errors.Is(err, sarama.ErrTopicAlreadyExists) || (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) {
				glog.Infof("[Topic] exists (race): %s", t)
				continue
			}
			return errs.WrapMsg(err, "create topic", "topic", t)
		}
		glog.Infof("[Topic] created: %s (partitions=%d, rf=%d)", t, c.PartitionsPerTopic, c.ReplicationFactor)
	}
	return nil
}

func strPtr(s string) *string { return &s }
