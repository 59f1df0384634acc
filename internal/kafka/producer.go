package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dgc-transports/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Envelope wraps every event the service emits.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func NewEnvelope(eventType string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

// Publisher emits domain events. Delivery is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, data interface{}) error
}

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish writes data to topic keyed by key. The topic name doubles as the
// envelope's event type.
func (p *Producer) Publish(ctx context.Context, topic, key string, data interface{}) error {
	env, err := NewEnvelope(topic, data)
	if err != nil {
		return err
	}
	msgBytes, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s event=%s", key, env.EventID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher drops events. Used when Kafka is disabled.
type NoopPublisher struct {
	Logger *logger.Logger
}

func (n NoopPublisher) Publish(_ context.Context, topic, key string, _ interface{}) error {
	n.Logger.Debug("KAFKA", fmt.Sprintf("kafka disabled, dropping %s key=%s", topic, key))
	return nil
}
