package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"event-ticketing-engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// gatedPublisher blocks every Publish until release is closed
type gatedPublisher struct {
	release chan struct{}
	started chan struct{}

	mu        sync.Mutex
	delivered []models.DomainEvent
	contexts  []context.Context
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (p *gatedPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	p.started <- struct{}{}
	<-p.release

	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, event)
	p.contexts = append(p.contexts, ctx)
	return nil
}

func (p *gatedPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delivered)
}

func testEvent() models.DomainEvent {
	return models.DomainEvent{ID: uuid.New(), Type: models.EventOrderPaid, OrderID: uuid.New(), OccurredAt: time.Now()}
}

func TestAsyncPublisher_PublishDoesNotWaitForDelivery(t *testing.T) {
	inner := newGatedPublisher()
	publisher := NewAsyncPublisher(inner, 4, time.Minute, zap.NewNop())

	start := time.Now()
	require.NoError(t, publisher.Publish(context.Background(), testEvent()))
	require.NoError(t, publisher.Publish(context.Background(), testEvent()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	<-inner.started
	assert.Equal(t, 0, inner.count(), "delivery is still blocked")

	close(inner.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, publisher.Shutdown(ctx))
	assert.Equal(t, 2, inner.count())
}

func TestAsyncPublisher_FullQueueDrops(t *testing.T) {
	inner := newGatedPublisher()
	publisher := NewAsyncPublisher(inner, 1, time.Minute, zap.NewNop())

	require.NoError(t, publisher.Publish(context.Background(), testEvent()))
	<-inner.started // worker holds the first event, queue is empty again
	require.NoError(t, publisher.Publish(context.Background(), testEvent()))

	err := publisher.Publish(context.Background(), testEvent())
	assert.ErrorIs(t, err, ErrQueueFull)

	close(inner.release)
	require.NoError(t, publisher.Shutdown(context.Background()))
	assert.Equal(t, 2, inner.count())
}

func TestAsyncPublisher_ShutdownTimesOut(t *testing.T) {
	inner := newGatedPublisher()
	defer close(inner.release)
	publisher := NewAsyncPublisher(inner, 2, time.Minute, zap.NewNop())

	require.NoError(t, publisher.Publish(context.Background(), testEvent()))
	<-inner.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := publisher.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.ErrorIs(t, publisher.Publish(context.Background(), testEvent()), ErrPublisherClosed)
}

func TestAsyncPublisher_DetachesCallerCancellation(t *testing.T) {
	inner := newGatedPublisher()
	close(inner.release)
	publisher := NewAsyncPublisher(inner, 2, time.Minute, zap.NewNop())

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx, cancel := context.WithCancel(trace.ContextWithSpanContext(context.Background(), spanCtx))
	require.NoError(t, publisher.Publish(ctx, testEvent()))
	cancel()

	require.NoError(t, publisher.Shutdown(context.Background()))
	require.Len(t, inner.contexts, 1)
	delivered := inner.contexts[0]
	assert.NoError(t, delivered.Err(), "request cancellation must not abort delivery")
	assert.Equal(t, spanCtx.TraceID(), trace.SpanContextFromContext(delivered).TraceID())
}

func TestAsyncPublisher_LogsDeliveryFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker unavailable")}
	publisher := NewAsyncPublisher(NewKafkaPublisher(producer, zap.NewNop()), 2, time.Second, zap.NewNop())

	assert.NoError(t, publisher.Publish(context.Background(), testEvent()), "failures surface in the worker, not the caller")
	require.NoError(t, publisher.Shutdown(context.Background()))
	assert.Empty(t, producer.messages)
}
