package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dgc-transports/internal/logger"

	"github.com/segmentio/kafka-go"
)

// PaymentSucceeded is published by the payment service once a customer
// completes checkout for a seat hold.
type PaymentSucceeded struct {
	HoldToken string `json:"hold_token"`
	Reference string `json:"reference"`
	UserID    string `json:"user_id"`
}

func DecodePaymentSucceeded(value []byte) (PaymentSucceeded, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return PaymentSucceeded{}, fmt.Errorf("decode envelope: %w", err)
	}
	var evt PaymentSucceeded
	if err := json.Unmarshal(env.Data, &evt); err != nil {
		return PaymentSucceeded{}, fmt.Errorf("decode payment event: %w", err)
	}
	if evt.HoldToken == "" || evt.Reference == "" {
		return PaymentSucceeded{}, errors.New("payment event missing hold_token or reference")
	}
	return evt, nil
}

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes until ctx is cancelled. A message is committed after handle
// returns, whether or not it succeeded, so one poison message cannot stall
// the partition.
func (c *Consumer) Start(ctx context.Context, handle func(ctx context.Context, msg kafka.Message) error) {
	topic := c.reader.Config().Topic
	c.logger.LogKafka("CONSUME", topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.LogKafka("CONSUME", topic, "consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("error reading from %s: %v", topic, err))
			continue
		}

		if err := handle(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("handler failed for %s offset %d: %v", topic, msg.Offset, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("commit failed for %s offset %d: %v", topic, msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
