package model

import "time"

// Booking status values.  Flight legs mirror the booking status.
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
)

// Booking is the aggregate checkout unit grouping hotel reservations and
// flight legs for one user.  It exclusively owns its reservations and
// flights (cascade delete) and has at most one invoice.
//
// Fields:
//
//	ID                – primary key identifier.
//	UserID            – user who checked out.
//	Status            – PENDING, CONFIRMED or CANCELLED.
//	TotalPriceCents   – reservation costs plus flight leg prices.
//	ProviderReference – AFS booking reference when flights are present.
//	Reservations      – hotel legs, populated on read.
//	Flights           – flight legs, populated on read.
type Booking struct {
	ID                uint64    `db:"id"`                 // bookings.id
	UserID            uint64    `db:"user_id"`            // bookings.user_id
	Status            string    `db:"status"`             // bookings.status
	TotalPriceCents   int64     `db:"total_price_cents"`  // bookings.total_price_cents
	ProviderReference *string   `db:"provider_reference"` // bookings.provider_reference (nullable)
	CreatedAt         time.Time `db:"created_at"`         // bookings.created_at
	UpdatedAt         time.Time `db:"updated_at"`         // bookings.updated_at

	Reservations []Reservation `db:"-"`
	Flights      []Flight      `db:"-"`
}

// Flight is a booked leg referencing an AFS flight.  The schedule and
// price are the provider's snapshot at booking time and are never
// re-queried.
type Flight struct {
	ID            uint64    `db:"id"`             // flights.id
	BookingID     uint64    `db:"booking_id"`     // flights.booking_id
	AFSFlightID   string    `db:"afs_flight_id"`  // flights.afs_flight_id
	Origin        string    `db:"origin"`         // flights.origin
	Destination   string    `db:"destination"`    // flights.destination
	DepartureTime time.Time `db:"departure_time"` // flights.departure_time
	ArrivalTime   time.Time `db:"arrival_time"`   // flights.arrival_time
	PriceCents    int64     `db:"price_cents"`    // flights.price_cents
	Status        string    `db:"status"`         // flights.status
	CreatedAt     time.Time `db:"created_at"`     // flights.created_at
}
