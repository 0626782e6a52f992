//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"nucleus/internal/platform/bus"
	"nucleus/internal/platform/config"
	"nucleus/internal/platform/kafka"
	"nucleus/internal/platform/logger"
	"nucleus/pkg/testutil/containers"
)

type KafkaBusSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaBusSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaBusSuite))
}

func (s *KafkaBusSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaBusSuite) newBus(group string, topics ...string) *kafka.Bus {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b, err := kafka.New(ctx, config.Kafka{
		Brokers:       s.redpanda.Brokers,
		ConsumerGroup: group,
		Partitions:    3,
		Replication:   1,
		CreateTopics:  true,
	}, group, topics,
		kafka.WithLogger(logger.Discard()),
		kafka.WithClientOptions(kgo.ConsumeResetOffset(kgo.NewOffset().AtStart())),
	)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = b.Close() })
	return b
}

// TestEveryNodeReceivesEveryEvent verifies per-node consumer groups fan out.
func (s *KafkaBusSuite) TestEveryNodeReceivesEveryEvent() {
	const topic = "it.fanout"
	nodeA := s.newBus("node-a", topic)
	nodeB := s.newBus("node-b", topic)

	received := map[string]chan *bus.Message{
		"a": make(chan *bus.Message, 4),
		"b": make(chan *bus.Message, 4),
	}
	for name, b := range map[string]*kafka.Bus{"a": nodeA, "b": nodeB} {
		ch := received[name]
		_, err := b.Subscribe(context.Background(), topic, bus.HandlerFunc(func(_ context.Context, msg *bus.Message) error {
			ch <- msg
			return nil
		}))
		s.Require().NoError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Require().NoError(nodeA.Publish(ctx, topic, "P1", []byte(`{"event_id":"e1"}`)))

	for name, ch := range received {
		select {
		case msg := <-ch:
			s.Equal("P1", string(msg.Key), "node %s", name)
			s.JSONEq(`{"event_id":"e1"}`, string(msg.Value))
		case <-time.After(30 * time.Second):
			s.Failf("timeout", "node %s never received the event", name)
		}
	}
}

func (s *KafkaBusSuite) TestDuplicateSubscriptionRejected() {
	const topic = "it.duplicate"
	b := s.newBus("node-dup", topic)
	noop := bus.HandlerFunc(func(context.Context, *bus.Message) error { return nil })

	sub, err := b.Subscribe(context.Background(), topic, noop)
	s.Require().NoError(err)
	_, err = b.Subscribe(context.Background(), topic, noop)
	s.Error(err)

	s.Require().NoError(sub.Unsubscribe())
	_, err = b.Subscribe(context.Background(), topic, noop)
	s.NoError(err)
}
