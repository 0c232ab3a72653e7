package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CCNLMonitor/internal/domain"
)

func TestWebhookGatewayPublishesOneRecordPerRecipient(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, NewProducerConfig("test"))
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(raw []byte) error {
		var p webhookPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if p.Recipient != "hook-a" || p.Template != domain.KindRenewal {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	g := NewWebhookGatewayWithProducer(producer, "ccnl.webhooks", nil)
	assert.Equal(t, domain.ChannelWebhook, g.Channel())

	sent, err := g.Deliver(context.Background(), domain.Notification{
		TemplateID: domain.KindRenewal,
		Title:      "Rinnovo",
		Priority:   domain.PriorityHigh,
	}, []string{"hook-a", "hook-b"})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.NoError(t, g.Close())
}

func TestWebhookGatewayCountsFailures(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, NewProducerConfig(""))
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	g := NewWebhookGatewayWithProducer(producer, "ccnl.webhooks", nil)
	sent, err := g.Deliver(context.Background(), domain.Notification{TemplateID: domain.KindUpdate}, []string{"a", "b"})

	assert.Equal(t, 1, sent)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, g.Close())
}

func TestNewWebhookGatewayRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := NewWebhookGateway(Config{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)
}
