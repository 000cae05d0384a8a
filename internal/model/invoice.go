package model

import "time"

// Invoice is issued once per confirmed booking.  BookingID is unique in
// the invoices table.
type Invoice struct {
	ID          uint64    `db:"id"`           // invoices.id
	BookingID   uint64    `db:"booking_id"`   // invoices.booking_id (unique)
	Number      string    `db:"number"`       // invoices.number
	AmountCents int64     `db:"amount_cents"` // invoices.amount_cents
	Currency    string    `db:"currency"`     // invoices.currency
	Document    string    `db:"document"`     // invoices.document (rendered text)
	CreatedAt   time.Time `db:"created_at"`   // invoices.created_at
}

// Notification kinds.
const (
	NotificationBookingConfirmed = "BOOKING_CONFIRMED"
	NotificationBookingCancelled = "BOOKING_CANCELLED"
	NotificationInvoiceIssued    = "INVOICE_ISSUED"
)

// Notification is a fire-and-forget message for a user.
type Notification struct {
	ID        uint64    `db:"id"`         // notifications.id
	UserID    uint64    `db:"user_id"`    // notifications.user_id
	Kind      string    `db:"kind"`       // notifications.kind
	Message   string    `db:"message"`    // notifications.message
	IsRead    bool      `db:"is_read"`    // notifications.is_read
	CreatedAt time.Time `db:"created_at"` // notifications.created_at
}
