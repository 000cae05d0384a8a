package model

import "time"

// Room status values.  A room is flipped to RESERVED when a reservation
// names it explicitly and back to AVAILABLE when that booking is cancelled.
const (
	RoomAvailable   = "AVAILABLE"
	RoomReserved    = "RESERVED"
	RoomMaintenance = "MAINTENANCE"
)

// Hotel is the property a room type belongs to.  The booking core only
// reads it for display and invoice rendering.
type Hotel struct {
	ID        uint64    `db:"id"`         // hotels.id
	Name      string    `db:"name"`       // hotels.name
	City      string    `db:"city"`       // hotels.city
	CreatedAt time.Time `db:"created_at"` // hotels.created_at
}

// RoomType is a bookable category of room within a hotel with a fixed
// nightly capacity.
//
// Fields:
//
//	ID                 – primary key identifier.
//	HotelID            – owning hotel.
//	Name               – display name (e.g. "Double Deluxe").
//	PricePerNightCents – nightly price of one room in cents.
//	TotalRooms         – fixed capacity used when no override exists.
type RoomType struct {
	ID                 uint64    `db:"id"`                    // room_types.id
	HotelID            uint64    `db:"hotel_id"`              // room_types.hotel_id
	HotelName          string    `db:"hotel_name"`            // hotels.name (joined)
	Name               string    `db:"name"`                  // room_types.name
	PricePerNightCents int64     `db:"price_per_night_cents"` // room_types.price_per_night_cents
	TotalRooms         int       `db:"total_rooms"`           // room_types.total_rooms
	CreatedAt          time.Time `db:"created_at"`            // room_types.created_at
}

// Room is a physical room of a room type.
type Room struct {
	ID         uint64 `db:"id"`           // rooms.id
	RoomTypeID uint64 `db:"room_type_id"` // rooms.room_type_id
	Number     string `db:"number"`       // rooms.number
	Status     string `db:"status"`       // rooms.status
}

// RoomAvailability is a sparse per-date override of the available-room
// count for a room type.  When a row exists for a date it is authoritative
// for that date; reservations committed on the date decrement it and
// cancellations give the rooms back.
type RoomAvailability struct {
	ID             uint64    `db:"id"`              // room_availability.id
	RoomTypeID     uint64    `db:"room_type_id"`    // room_availability.room_type_id
	Date           time.Time `db:"date"`            // room_availability.date (DATE, UTC)
	AvailableRooms int       `db:"available_rooms"` // room_availability.available_rooms
}
