package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-ticket-lifecycle/internal/logger"
	"ms-ticket-lifecycle/internal/models"
)

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topic  string
	logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewProducerWithWriter(writer, topic, log)
}

func NewProducerWithWriter(w MessageWriter, topic string, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.Discard()
	}
	return &Producer{Writer: w, Topic: topic, logger: log}
}

// PublishTicketEvent streams a lifecycle event keyed by ticket id, so every
// event of one ticket lands on the same partition in order.
func (p *Producer) PublishTicketEvent(ctx context.Context, event models.TicketEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode ticket event: %w", err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TicketID),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventType(event.Operation))},
		},
	})
	if err != nil {
		p.logger.LogKafka("PUBLISH_FAILED", p.Topic, fmt.Sprintf("%s %s: %v", event.Operation, event.TicketID, err))
		return err
	}

	p.logger.LogKafka("PUBLISHED", p.Topic, fmt.Sprintf("%s %s", EventType(event.Operation), event.TicketID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher drops events; used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishTicketEvent(context.Context, models.TicketEvent) error { return nil }
func (NoopPublisher) Close() error                                                { return nil }
