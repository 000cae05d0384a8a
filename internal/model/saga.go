package model

import "time"

// Flight saga states.  A saga row is written before the provider is
// called and moves forward as each side of the booking settles.
const (
	SagaProviderPending   = "PROVIDER_PENDING"   // provider call in flight
	SagaProviderCommitted = "PROVIDER_COMMITTED" // provider booked, local commit pending
	SagaProviderUnknown   = "PROVIDER_UNKNOWN"   // provider timed out or 5xx; outcome unknown
	SagaCompleted         = "COMPLETED"
	SagaPartialFailure    = "PARTIAL_FAILURE" // provider booked, local commit failed
	SagaAborted           = "ABORTED"         // provider rejected or no longer knows the booking
	SagaNeedsManual       = "NEEDS_MANUAL"    // reconciler gave up
)

// FlightSaga journals a provider-then-local booking so that a crash or a
// local failure after the provider booked can be reconciled later.
// FlightIDs, HotelLegs and ProviderPayload hold JSON documents.
type FlightSaga struct {
	ID                uint64    `db:"id"`                 // flight_sagas.id
	CorrelationID     string    `db:"correlation_id"`     // flight_sagas.correlation_id
	UserID            uint64    `db:"user_id"`            // flight_sagas.user_id
	LastName          string    `db:"last_name"`          // flight_sagas.last_name
	FlightIDs         []byte    `db:"flight_ids"`         // flight_sagas.flight_ids (JSON)
	HotelLegs         []byte    `db:"hotel_legs"`         // flight_sagas.hotel_legs (JSON)
	Status            string    `db:"status"`             // flight_sagas.status
	ProviderReference *string   `db:"provider_reference"` // flight_sagas.provider_reference
	ProviderPayload   []byte    `db:"provider_payload"`   // flight_sagas.provider_payload (JSON)
	BookingID         *uint64   `db:"booking_id"`         // flight_sagas.booking_id
	LastError         *string   `db:"last_error"`         // flight_sagas.last_error
	Attempts          int       `db:"attempts"`           // flight_sagas.attempts
	CreatedAt         time.Time `db:"created_at"`         // flight_sagas.created_at
	UpdatedAt         time.Time `db:"updated_at"`         // flight_sagas.updated_at
}
