package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// Config describes the webhook topic producer.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// webhookPayload is the record written for every recipient.
type webhookPayload struct {
	Template  domain.NotificationKind `json:"template"`
	Recipient string                  `json:"recipient"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Priority  domain.Priority         `json:"priority"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// WebhookGateway publishes webhook notifications to a Kafka topic. A relay
// service consumes the topic and performs the HTTP callbacks.
type WebhookGateway struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

var _ ports.ChannelGateway = (*WebhookGateway)(nil)

// NewProducerConfig returns the sarama configuration used by the gateway.
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

// NewWebhookGateway connects a synchronous producer to the brokers.
func NewWebhookGateway(cfg Config, logger *slog.Logger) (*WebhookGateway, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka webhook: brokers and topic are required")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return NewWebhookGatewayWithProducer(producer, cfg.Topic, logger), nil
}

// NewWebhookGatewayWithProducer wraps an existing producer.
func NewWebhookGatewayWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *WebhookGateway {
	return &WebhookGateway{producer: producer, topic: topic, logger: logger}
}

func (g *WebhookGateway) Channel() domain.Channel { return domain.ChannelWebhook }

// Deliver writes one record per recipient, keyed by recipient. It returns the
// number of records acknowledged and the last producer error, if any.
func (g *WebhookGateway) Deliver(ctx context.Context, n domain.Notification, recipients []string) (int, error) {
	sent := 0
	var lastErr error
	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		value, err := json.Marshal(webhookPayload{
			Template:  n.TemplateID,
			Recipient: recipient,
			Title:     n.Title,
			Message:   n.Message,
			Priority:  n.Priority,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt,
		})
		if err != nil {
			lastErr = fmt.Errorf("marshal payload: %w", err)
			continue
		}

		partition, offset, err := g.producer.SendMessage(&sarama.ProducerMessage{
			Topic: g.topic,
			Key:   sarama.StringEncoder(recipient),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("template"), Value: []byte(n.TemplateID)},
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("send message: %w", err)
			g.warn("webhook publish failed", "recipient", recipient, "error", err)
			continue
		}
		g.debug("webhook published", "recipient", recipient, "partition", partition, "offset", offset)
		sent++
	}
	return sent, lastErr
}

// Close flushes and closes the producer.
func (g *WebhookGateway) Close() error {
	return g.producer.Close()
}

func (g *WebhookGateway) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}

func (g *WebhookGateway) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
