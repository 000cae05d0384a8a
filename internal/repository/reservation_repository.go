package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/travel-booking/internal/model"
)

const roomTypeQuery = `SELECT rt.id, rt.hotel_id, h.name AS hotel_name, rt.name,
	rt.price_per_night_cents, rt.total_rooms, rt.created_at
	FROM room_types rt JOIN hotels h ON h.id = rt.hotel_id
	WHERE rt.id = ?`

const reservationCols = `id, booking_id, room_type_id, room_id, check_in_date, check_out_date,
	rooms_booked, price_per_night_cents, status, created_at`

func (r queries) GetRoomType(ctx context.Context, id uint64) (model.RoomType, error) {
	var rt model.RoomType
	err := sqlx.GetContext(ctx, r.q, &rt, roomTypeQuery, id)
	return rt, translate(err)
}

// LockRoomType reads the room type with FOR UPDATE.  Every commit touching
// the type queues behind this row lock until the transaction ends.
func (t *tx) LockRoomType(ctx context.Context, id uint64) (model.RoomType, error) {
	var rt model.RoomType
	err := sqlx.GetContext(ctx, t.q, &rt, roomTypeQuery+` FOR UPDATE`, id)
	return rt, translate(err)
}

func (r queries) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	var room model.Room
	err := sqlx.GetContext(ctx, r.q, &room, `SELECT id, room_type_id, number, status FROM rooms WHERE id = ?`, id)
	return room, translate(err)
}

func (t *tx) SetRoomStatus(ctx context.Context, roomID uint64, status string) error {
	res, err := t.q.ExecContext(ctx, `UPDATE rooms SET status = ? WHERE id = ?`, status, roomID)
	return affected(res, err)
}

// ListReservations returns CONFIRMED reservations of the room type that
// hold at least one night in [from, to).  Check-out is exclusive.
func (r queries) ListReservations(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations
		WHERE room_type_id = ? AND status = 'CONFIRMED' AND check_in_date < ? AND check_out_date > ?
		ORDER BY id`
	var out []model.Reservation
	err := sqlx.SelectContext(ctx, r.q, &out, q, roomTypeID, to, from)
	return out, translate(err)
}

func (r queries) ListOverrides(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.RoomAvailability, error) {
	const q = `SELECT id, room_type_id, date, available_rooms FROM room_availability
		WHERE room_type_id = ? AND date >= ? AND date < ?
		ORDER BY date`
	var out []model.RoomAvailability
	err := sqlx.SelectContext(ctx, r.q, &out, q, roomTypeID, from, to)
	return out, translate(err)
}

func (t *tx) AdjustOverride(ctx context.Context, roomTypeID uint64, date time.Time, delta int) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE room_availability SET available_rooms = available_rooms + ? WHERE room_type_id = ? AND date = ?`,
		delta, roomTypeID, date)
	return err
}

func (t *tx) CreateReservation(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations
		(booking_id, room_type_id, room_id, check_in_date, check_out_date, rooms_booked, price_per_night_cents, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	created := now()
	result, err := t.q.ExecContext(ctx, q, res.BookingID, res.RoomTypeID, res.RoomID, res.CheckInDate, res.CheckOutDate,
		res.RoomsBooked, res.PricePerNightCents, res.Status, created)
	if err != nil {
		return translate(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID, res.CreatedAt = uint64(id), created
	return nil
}
