package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProducer struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (p *fakeProducer) WriteMessage(ctx context.Context, msg kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	return headerCarrier{msg: &msg}.Get(key)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewKafkaPublisher(producer, zap.NewNop())

	order := &models.Order{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Status:      models.OrderPaid,
		OrderNumber: "ORD-20250601-000042",
	}
	items := []*models.OrderItem{{TicketTypeID: uuid.New(), Quantity: 2, UnitPriceCents: 2000, FeeCents: 200}}
	event := models.NewOrderEvent(models.EventOrderPaid, order, items, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, order.ID.String(), string(msg.Key))
	assert.Equal(t, "order.paid", header(msg, "event_type"))
	assert.Equal(t, event.ID.String(), header(msg, "event_id"))

	var decoded models.DomainEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, order.ID, decoded.OrderID)
	assert.Equal(t, order.UserID, decoded.RecipientID)
	assert.Equal(t, int64(4400), decoded.TotalCents)
	assert.Equal(t, "ORD-20250601-000042", decoded.OrderNumber)

	require.NoError(t, publisher.Close())
	assert.True(t, producer.closed)
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("leader not available")}
	publisher := NewKafkaPublisher(producer, zap.NewNop())

	err := publisher.Publish(context.Background(), models.DomainEvent{Type: models.EventCartExpired, OrderID: uuid.New()})
	assert.ErrorIs(t, err, producer.err)
}

func TestHeaderCarrier(t *testing.T) {
	msg := kafka.Message{}
	carrier := headerCarrier{msg: &msg}

	carrier.Set("traceparent", "00-a-b-01")
	carrier.Set("traceparent", "00-c-d-01")
	carrier.Set("tracestate", "x=y")

	assert.Equal(t, "00-c-d-01", carrier.Get("traceparent"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, carrier.Keys())
	assert.Empty(t, carrier.Get("missing"))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), models.DomainEvent{}))
}
