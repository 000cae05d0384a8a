package model

import "time"

// Reservation status values.
const (
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

// Reservation records an occupancy of some number of rooms of one room
// type over [CheckInDate, CheckOutDate).  Reservations are only ever
// created inside a committer transaction together with their booking.
//
// Fields:
//
//	ID                 – primary key identifier.
//	BookingID          – owning booking.
//	RoomTypeID         – room type whose capacity is consumed.
//	RoomID             – specific room, when the client asked for one.
//	CheckInDate        – first night (inclusive).
//	CheckOutDate       – departure day (exclusive).
//	RoomsBooked        – number of rooms, at least 1.
//	PricePerNightCents – price snapshot taken at commit time.
//	Status             – CONFIRMED or CANCELLED.
type Reservation struct {
	ID                 uint64    `db:"id"`                    // reservations.id
	BookingID          uint64    `db:"booking_id"`            // reservations.booking_id
	RoomTypeID         uint64    `db:"room_type_id"`          // reservations.room_type_id
	RoomID             *uint64   `db:"room_id"`               // reservations.room_id (nullable)
	CheckInDate        time.Time `db:"check_in_date"`         // reservations.check_in_date
	CheckOutDate       time.Time `db:"check_out_date"`        // reservations.check_out_date
	RoomsBooked        int       `db:"rooms_booked"`          // reservations.rooms_booked
	PricePerNightCents int64     `db:"price_per_night_cents"` // reservations.price_per_night_cents
	Status             string    `db:"status"`                // reservations.status
	CreatedAt          time.Time `db:"created_at"`            // reservations.created_at
}

// Nights returns the number of nights covered by the reservation.
func (r Reservation) Nights() int {
	return int(r.CheckOutDate.Sub(r.CheckInDate).Hours() / 24)
}

// CostCents is nights × rooms × nightly price.
func (r Reservation) CostCents() int64 {
	return int64(r.Nights()) * int64(r.RoomsBooked) * r.PricePerNightCents
}

// Covers reports whether the reservation occupies the given night.  The
// check-in day is inclusive and the checkout day exclusive.
func (r Reservation) Covers(day time.Time) bool {
	return !day.Before(r.CheckInDate) && day.Before(r.CheckOutDate)
}
