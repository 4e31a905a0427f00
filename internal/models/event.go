package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event emitted after a committed order transition
type EventType string

const (
	EventOrderPaid     EventType = "order.paid"
	EventCartCancelled EventType = "cart.cancelled"
	EventCartExpired   EventType = "cart.expired"
)

// DomainEvent is published after the transaction that caused it commits
type DomainEvent struct {
	ID          uuid.UUID   `json:"id"`
	Type        EventType   `json:"type"`
	OrderID     uuid.UUID   `json:"order_id"`
	UserID      uuid.UUID   `json:"user_id"`
	RecipientID uuid.UUID   `json:"recipient_id"`
	OrderNumber string      `json:"order_number,omitempty"`
	TotalCents  int64       `json:"total_cents"`
	Items       []EventItem `json:"items"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// EventItem is the ticket-type quantity carried by a domain event
type EventItem struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
}

// NewOrderEvent describes an order transition of the given type
func NewOrderEvent(eventType EventType, order *Order, items []*OrderItem, now time.Time) DomainEvent {
	event := DomainEvent{
		ID:          uuid.New(),
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		RecipientID: order.RecipientID(),
		OrderNumber: order.OrderNumber,
		TotalCents:  CalculateTotal(items),
		Items:       make([]EventItem, 0, len(items)),
		OccurredAt:  now,
	}
	for _, item := range items {
		event.Items = append(event.Items, EventItem{TicketTypeID: item.TicketTypeID, Quantity: item.Quantity})
	}
	return event
}
