package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentOutcome is the pass/fail result reported by the payment gateway
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
)

// PaymentResult is what the excluded gateway layer hands to the engine
type PaymentResult struct {
	ProviderReference string         `json:"provider_reference"`
	AmountCents       int64          `json:"amount_cents"`
	Outcome           PaymentOutcome `json:"outcome"`
	PaidBy            *uuid.UUID     `json:"paid_by,omitempty"`
}

// Payment is a recorded payment result
type Payment struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	OrderID           uuid.UUID      `json:"order_id" db:"order_id"`
	ProviderReference string         `json:"provider_reference" db:"provider_reference"`
	AmountCents       int64          `json:"amount_cents" db:"amount_cents"`
	Outcome           PaymentOutcome `json:"outcome" db:"outcome"`
	CreatedBy         *uuid.UUID     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// PaymentApplication summarizes what apply_payment did
type PaymentApplication struct {
	Order      *Order   `json:"order"`
	Payment    *Payment `json:"payment"`
	PaidCents  int64    `json:"paid_cents"`
	TotalCents int64    `json:"total_cents"`
	Duplicate  bool     `json:"duplicate"`
	Completed  bool     `json:"completed"`
}

// Validate validates a payment result
func (r *PaymentResult) Validate() error {
	if strings.TrimSpace(r.ProviderReference) == "" {
		return errors.New("provider reference is required")
	}

	if len(r.ProviderReference) > 255 {
		return errors.New("provider reference must be less than 255 characters")
	}

	if r.AmountCents < 0 {
		return errors.New("payment amount cannot be negative")
	}

	switch r.Outcome {
	case PaymentSucceeded, PaymentFailed:
		return nil
	default:
		return errors.New("invalid payment outcome")
	}
}

// NewPayment records r against orderID
func NewPayment(orderID uuid.UUID, r PaymentResult, now time.Time) *Payment {
	return &Payment{
		ID:                uuid.New(),
		OrderID:           orderID,
		ProviderReference: strings.TrimSpace(r.ProviderReference),
		AmountCents:       r.AmountCents,
		Outcome:           r.Outcome,
		CreatedBy:         r.PaidBy,
		CreatedAt:         now,
	}
}

// IsSucceeded returns true if the payment counts towards the order total
func (p *Payment) IsSucceeded() bool {
	return p.Outcome == PaymentSucceeded
}

// SumSucceeded returns the cumulative amount of successful payments
func SumSucceeded(payments []*Payment) int64 {
	var sum int64
	for _, p := range payments {
		if p.IsSucceeded() {
			sum += p.AmountCents
		}
	}
	return sum
}
