package notification

import (
	"context"
	"encoding/json"
	"time"

	pkgkafka "reviewcamp/pkg/kafka"

	"github.com/bwmarrin/snowflake"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
)

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notification

// Notifier delivers a user-facing notification. Implementations may fail;
// callers go through Dispatcher, which never propagates the failure.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind Kind, payload map[string]any) error
}

type KafkaNotifier struct {
	producer pkgkafka.Producer
	topic    string
	node     *snowflake.Node
}

func NewKafkaNotifier(producer pkgkafka.Producer, topic string, node *snowflake.Node) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, node: node}
}

// Notify enqueues the event on the producer. Delivery reports are handled by
// the producer's event loop.
func (n *KafkaNotifier) Notify(ctx context.Context, userID string, kind Kind, payload map[string]any) error {
	evt := Event{
		ID:        n.node.Generate().String(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	topic := n.topic
	return n.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(userID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "kind", Value: []byte(kind)}},
		Timestamp:      evt.CreatedAt,
	}, nil)
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID string, kind Kind, payload map[string]any) error {
	zap.L().Info("notification", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Any("payload", payload))
	return nil
}

// Dispatcher sends notifications without ever blocking a state change on
// the outcome.
type Dispatcher struct {
	notifier Notifier
}

func NewDispatcher(n Notifier) *Dispatcher {
	if n == nil {
		n = LogNotifier{}
	}
	return &Dispatcher{notifier: n}
}

func (d *Dispatcher) Send(ctx context.Context, userID string, kind Kind, payload map[string]any) {
	if d == nil || userID == "" {
		return
	}
	if err := d.notifier.Notify(ctx, userID, kind, payload); err != nil {
		zap.L().Warn("failed to send notification",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
