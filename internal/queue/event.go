// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumer.
package queue

// Queue names.  All queues are durable and messages are persistent.
const (
	BookingConfirmedQueue = "booking.confirmed"
	InvoiceIssuedQueue    = "invoice.issued"
	PartialFailureQueue   = "booking.partial_failure"
)

// BookingConfirmedEvent is published when a booking has been committed.
// It contains enough information for downstream consumers to notify the
// user without querying the primary database.
type BookingConfirmedEvent struct {
	BookingID         uint64   `json:"booking_id"`
	UserID            uint64   `json:"user_id"`
	Email             string   `json:"email,omitempty"`
	Hotels            []string `json:"hotels"`
	Flights           []string `json:"flights"`
	ProviderReference string   `json:"provider_reference,omitempty"`
	TotalPriceCents   int64    `json:"total_price_cents"`
	ConfirmedAt       string   `json:"confirmed_at"`
}

// InvoiceIssuedEvent is published after an invoice row has been created.
type InvoiceIssuedEvent struct {
	InvoiceID     uint64 `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	BookingID     uint64 `json:"booking_id"`
	UserID        uint64 `json:"user_id"`
	Email         string `json:"email,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Document      string `json:"document"`
	IssuedAt      string `json:"issued_at"`
}

// PartialFailureEvent is published when the flight provider booked but the
// local commit failed.  Operators consume it; the reconciler retries.
type PartialFailureEvent struct {
	SagaID            uint64 `json:"saga_id"`
	UserID            uint64 `json:"user_id"`
	ProviderReference string `json:"provider_reference"`
	LocalError        string `json:"local_error"`
	OccurredAt        string `json:"occurred_at"`
}
