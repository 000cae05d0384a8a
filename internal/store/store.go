// Package store declares the persistence contract used by the booking
// core.  The MySQL implementation lives in internal/repository and an
// in-memory implementation for tests lives in internal/store/storetest.
//
// All mutation of room types, reservations, bookings and flight legs goes
// through a Tx obtained from Store.InTx.  The callback runs inside one
// serializable transaction; returning an error rolls everything back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/travel-booking/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key, for
// example a second invoice for the same booking.
var ErrDuplicate = errors.New("duplicate")

// Reader exposes the read side shared by the store and its transactions.
type Reader interface {
	GetRoomType(ctx context.Context, id uint64) (model.RoomType, error)
	GetRoom(ctx context.Context, id uint64) (model.Room, error)
	// ListReservations returns CONFIRMED reservations of the room type that
	// occupy at least one night in [from, to).
	ListReservations(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.Reservation, error)
	// ListOverrides returns room_availability rows with from <= date < to.
	ListOverrides(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.RoomAvailability, error)
	// GetBooking loads a booking with its reservations and flight legs.
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	GetInvoiceByBooking(ctx context.Context, bookingID uint64) (model.Invoice, error)
	GetUser(ctx context.Context, id uint64) (model.User, error)
}

// Tx is a unit of work.  Locks taken through it are held until the
// enclosing InTx returns.
type Tx interface {
	Reader

	// LockRoomType reads the room type row with an exclusive lock.
	LockRoomType(ctx context.Context, id uint64) (model.RoomType, error)
	// LockBooking reads the booking row (with legs) with an exclusive lock.
	LockBooking(ctx context.Context, id uint64) (model.Booking, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	CreateReservation(ctx context.Context, r *model.Reservation) error
	CreateFlight(ctx context.Context, f *model.Flight) error
	// SetBookingStatus updates the booking and mirrors the status onto its
	// reservations and flight legs.
	SetBookingStatus(ctx context.Context, bookingID uint64, status string) error
	// AdjustOverride adds delta to the override row of the given date.  A
	// missing row is left alone.
	AdjustOverride(ctx context.Context, roomTypeID uint64, date time.Time, delta int) error
	SetRoomStatus(ctx context.Context, roomID uint64, status string) error
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// SagaStore persists the flight saga journal.
type SagaStore interface {
	CreateSaga(ctx context.Context, s *model.FlightSaga) error
	UpdateSaga(ctx context.Context, s *model.FlightSaga) error
	GetSaga(ctx context.Context, id uint64) (model.FlightSaga, error)
	// ListSagas returns up to limit sagas in one of the given statuses whose
	// last update is before the cutoff, oldest first.
	ListSagas(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]model.FlightSaga, error)
}

// Store is the full persistence handle injected into the core services.
type Store interface {
	Reader
	SagaStore

	// InTx runs fn inside a serializable transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// CreateInvoice inserts an invoice; ErrDuplicate when the booking
	// already has one.
	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	CreateNotification(ctx context.Context, n *model.Notification) error
}
