package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"PPresence/service/session"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/pkg/errors"
)

func TestPresenceLogSendsRecord(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	defer func() { _ = p.Close() }()

	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec PresenceRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.Node != "gw-1" || rec.Type != session.TypeUserOnline || rec.UserID != 7 || rec.Sessions != 1 {
			return errors.Errorf("unexpected record %+v", rec)
		}
		return nil
	})

	l := NewPresenceLog(p, "presence_events", "gw-1")
	l.OnPresence(context.Background(), session.Event{
		Topic:    session.TopicChat,
		Type:     session.TypeUserOnline,
		UserID:   7,
		ConnID:   "c1",
		Sessions: 1,
		At:       time.Now(),
	})
}

func TestPresenceLogSendFailureIsSwallowed(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	defer func() { _ = p.Close() }()
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	NewPresenceLog(p, "presence_events", "gw-1").OnPresence(context.Background(), session.Event{
		Topic: session.TopicChat, Type: session.TypeUserOffline, UserID: 7,
	})
}

type fakeAdmin struct {
	sarama.ClusterAdmin
	existing map[string]bool
	created  []string
}

func (a *fakeAdmin) DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error) {
	out := make([]*sarama.TopicMetadata, 0, len(topics))
	for _, t := range topics {
		md := &sarama.TopicMetadata{Name: t, Err: sarama.ErrUnknownTopicOrPartition}
		if a.existing[t] {
			md.Err = sarama.ErrNoError
		}
		out = append(out, md)
	}
	return out, nil
}

func (a *fakeAdmin) CreateTopic(topic string, _ *sarama.TopicDetail, _ bool) error {
	if a.existing[topic] {
		return sarama.ErrTopicAlreadyExists
	}
	a.created = append(a.created, topic)
	return nil
}

func TestEnsureTopics(t *testing.T) {
	a := &fakeAdmin{existing: map[string]bool{"old": true}}
	if err := EnsureTopics(a, []string{"old", "presence_events"}, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if len(a.created) != 1 || a.created[0] != "presence_events" {
		t.Fatalf("created = %v", a.created)
	}
}

func TestBuildBaseConfig(t *testing.T) {
	c := DefaultConfig()
	c.ProducerCompression = "lz4"
	cfg := BuildBaseConfig(c)
	if !cfg.Producer.Return.Successes || cfg.Producer.Compression != sarama.CompressionLZ4 {
		t.Fatal("sync producer needs Return.Successes and the configured codec")
	}
	if _, err := NewProducer(Config{}); err == nil {
		t.Fatal("no brokers should fail")
	}
}
