// Package events publishes committed order transitions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"event-ticketing-engine/internal/models"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Producer defines the interface for publishing messages to Kafka
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaPublisher writes domain events as JSON, keyed by order ID so every
// event of one order lands on the same partition in order.
type KafkaPublisher struct {
	producer Producer
	logger   *zap.Logger
}

// NewKafkaPublisher creates a publisher on top of producer
func NewKafkaPublisher(producer Producer, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, logger: logger}
}

// Publish serializes event and writes it with the trace context in headers
func (p *KafkaPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
		Time: event.OccurredAt,
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("type", string(event.Type)),
		zap.String("order_id", event.OrderID.String()),
	)
	return nil
}

// Close closes the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// WriterProducer adapts a kafka.Writer to Producer
type WriterProducer struct {
	*kafka.Writer
}

// NewWriterProducer creates a writer for topic on brokers
func NewWriterProducer(brokers []string, topic string) *WriterProducer {
	return &WriterProducer{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// WriteMessage writes a single message synchronously
func (w *WriterProducer) WriteMessage(ctx context.Context, msg kafka.Message) error {
	return w.Writer.WriteMessages(ctx, msg)
}

// NopPublisher discards events, for deployments without a broker
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.DomainEvent) error { return nil }

// headerCarrier lets the OTel propagator write into Kafka headers
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
