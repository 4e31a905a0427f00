package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"event-ticketing-engine/internal/models"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the delivery queue has no free slot
	ErrQueueFull = errors.New("event queue is full")
	// ErrPublisherClosed is returned by Publish after Shutdown
	ErrPublisherClosed = errors.New("event publisher is closed")
)

// Publisher delivers a single event
type Publisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

type queuedEvent struct {
	ctx   context.Context
	event models.DomainEvent
}

// AsyncPublisher hands events to a background goroutine so request paths
// never wait on the broker. Publish only enqueues; delivery failures are
// logged by the worker.
type AsyncPublisher struct {
	next    Publisher
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

// NewAsyncPublisher starts a worker delivering to next. Each delivery is
// bounded by timeout.
func NewAsyncPublisher(next Publisher, queueSize int, timeout time.Duration, logger *zap.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 1
	}
	p := &AsyncPublisher{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan queuedEvent, queueSize),
		done:    make(chan struct{}),
	}
	go p.deliver()
	return p
}

// Publish enqueues event without blocking. The caller's span context is
// carried over but its cancellation is not.
func (p *AsyncPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	detached := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	select {
	case p.queue <- queuedEvent{ctx: detached, event: event}:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s event for order %s", ErrQueueFull, event.Type, event.OrderID)
	}
}

// Pending returns the number of queued events not yet handed to next
func (p *AsyncPublisher) Pending() int {
	return len(p.queue)
}

// Shutdown stops accepting events and waits for the queue to drain or ctx
// to end, whichever comes first.
func (p *AsyncPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d events undelivered: %w", len(p.queue), ctx.Err())
	}
}

func (p *AsyncPublisher) deliver() {
	defer close(p.done)

	for item := range p.queue {
		ctx, cancel := context.WithTimeout(item.ctx, p.timeout)
		if err := p.next.Publish(ctx, item.event); err != nil {
			p.logger.Warn("event delivery failed",
				zap.String("type", string(item.event.Type)),
				zap.String("order_id", item.event.OrderID.String()),
				zap.Error(err),
			)
		}
		cancel()
	}
}
