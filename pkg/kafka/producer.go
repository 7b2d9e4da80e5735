// Package kafka wraps the confluent producer used for outbound events.
package kafka

import (
	"context"

	"reviewcamp/pkg/config"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kafka.producer",
	fx.Provide(NewProducer),
)

// Producer is the subset of *kafka.Producer the services use.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

type producerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// NewProducer returns nil when KAFKA.ADDR is empty.
func NewProducer(p producerParams) (*kafka.Producer, error) {
	if p.Config.Kafka.Addrs == "" {
		zap.L().Warn("[Kafka] KAFKA.ADDR not set, producer disabled")
		return nil, nil
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  p.Config.Kafka.Addrs,
		"client.id":          p.Config.AppName,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		zap.L().Error("[Kafka] failed to create producer", zap.Error(err))
		return nil, err
	}

	go drainEvents(producer)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			remaining := producer.Flush(5000)
			if remaining > 0 {
				zap.L().Warn("[Kafka] unflushed messages on shutdown", zap.Int("remaining", remaining))
			}
			producer.Close()
			return nil
		},
	})

	return producer, nil
}

// drainEvents logs delivery failures reported by librdkafka.
func drainEvents(p *kafka.Producer) {
	for e := range p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				zap.L().Error("[Kafka] delivery failed",
					zap.Stringp("topic", ev.TopicPartition.Topic),
					zap.ByteString("key", ev.Key),
					zap.Error(ev.TopicPartition.Error))
			}
		case kafka.Error:
			zap.L().Error("[Kafka] producer error", zap.Error(ev))
		}
	}
}
