package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type producerStub struct {
	msgs []*kafka.Message
	err  error
}

func (p *producerStub) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestKafkaNotifierPublishesEvent(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	stub := &producerStub{}
	n := NewKafkaNotifier(stub, "notifications", node)

	require.NoError(t, n.Notify(context.Background(), "client-1", KindCampaignApproved, map[string]any{"campaign_id": "c-1"}))
	require.Len(t, stub.msgs, 1)

	msg := stub.msgs[0]
	require.Equal(t, "notifications", *msg.TopicPartition.Topic)
	require.Equal(t, []byte("client-1"), msg.Key)

	var evt Event
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	require.Equal(t, KindCampaignApproved, evt.Kind)
	require.Equal(t, "c-1", evt.Payload["campaign_id"])
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockNotifier(ctrl)
	mock.EXPECT().
		Notify(gomock.Any(), "rv-1", KindReviewApproved, gomock.Any()).
		Return(errors.New("broker down")).
		Times(1)

	d := NewDispatcher(mock)
	require.NotPanics(t, func() {
		d.Send(context.Background(), "rv-1", KindReviewApproved, nil)
	})

	// empty recipients are skipped
	d.Send(context.Background(), "", KindReviewApproved, nil)
}
