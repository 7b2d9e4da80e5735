package notification

import (
	"reviewcamp/pkg/config"

	"github.com/bwmarrin/snowflake"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(
		provideNotifier,
		NewDispatcher,
	),
)

type notifierParams struct {
	fx.In

	Config   *config.Config
	Node     *snowflake.Node
	Producer *kafka.Producer `optional:"true"`
}

func provideNotifier(p notifierParams) Notifier {
	if p.Producer == nil {
		return LogNotifier{}
	}
	return NewKafkaNotifier(p.Producer, p.Config.Kafka.NotificationTopic, p.Node)
}
