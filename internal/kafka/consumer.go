package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/models"
)

// MessageReader is the part of kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 30 * time.Second
)

// Consumer reads ledger confirmations published by the chain watcher.
type Consumer struct {
	reader MessageReader
	logger *logger.Logger

	RetryInitial time.Duration
	RetryMax     time.Duration
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(r MessageReader, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{reader: r, logger: log, RetryInitial: DefaultRetryInitial, RetryMax: DefaultRetryMax}
}

// Start consumes until ctx is canceled. A message that cannot be decoded is
// committed and skipped. Otherwise handler is retried with backoff until it
// succeeds, and nothing after the message is fetched before then: group
// commits are offsets, so moving on would commit past the failed one.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, confirmation models.LedgerConfirmation) error) error {
	c.logger.Info("KAFKA", "Ledger confirmation consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("error reading message: %w", err)
		}

		var confirmation models.LedgerConfirmation
		if err := json.Unmarshal(msg.Value, &confirmation); err != nil {
			c.logger.LogKafka("DECODE_FAILED", msg.Topic, fmt.Sprintf("offset %d: %v", msg.Offset, err))
			c.commit(ctx, msg)
			continue
		}

		if err := c.handle(ctx, msg, confirmation, handler); err != nil {
			// canceled mid-retry; the message stays uncommitted
			return nil
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, confirmation models.LedgerConfirmation, handler func(ctx context.Context, confirmation models.LedgerConfirmation) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryInitial
	policy.MaxInterval = c.RetryMax
	policy.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return handler(ctx, confirmation)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		c.logger.LogKafka("HANDLER_FAILED", msg.Topic,
			fmt.Sprintf("%s %s at offset %d: %v, retrying in %s", confirmation.Operation, confirmation.TicketID, msg.Offset, err, wait))
	})
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.LogKafka("COMMIT_FAILED", msg.Topic, err.Error())
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
