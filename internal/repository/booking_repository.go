package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/travel-booking/internal/model"
)

const bookingCols = `id, user_id, status, total_price_cents, provider_reference, created_at, updated_at`

// flightRow mirrors the flights table.  Legs reported without schedule
// details carry NULL times.
type flightRow struct {
	ID            uint64       `db:"id"`
	BookingID     uint64       `db:"booking_id"`
	AFSFlightID   string       `db:"afs_flight_id"`
	Origin        string       `db:"origin"`
	Destination   string       `db:"destination"`
	DepartureTime sql.NullTime `db:"departure_time"`
	ArrivalTime   sql.NullTime `db:"arrival_time"`
	PriceCents    int64        `db:"price_cents"`
	Status        string       `db:"status"`
	CreatedAt     time.Time    `db:"created_at"`
}

func (f flightRow) model() model.Flight {
	return model.Flight{
		ID:            f.ID,
		BookingID:     f.BookingID,
		AFSFlightID:   f.AFSFlightID,
		Origin:        f.Origin,
		Destination:   f.Destination,
		DepartureTime: f.DepartureTime.Time,
		ArrivalTime:   f.ArrivalTime.Time,
		PriceCents:    f.PriceCents,
		Status:        f.Status,
		CreatedAt:     f.CreatedAt,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (r queries) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return r.booking(ctx, id, "")
}

func (t *tx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.booking(ctx, id, " FOR UPDATE")
}

func (r queries) booking(ctx context.Context, id uint64, lock string) (model.Booking, error) {
	var b model.Booking
	if err := sqlx.GetContext(ctx, r.q, &b, `SELECT `+bookingCols+` FROM bookings WHERE id = ?`+lock, id); err != nil {
		return model.Booking{}, translate(err)
	}
	bs := []model.Booking{b}
	if err := r.attachLegs(ctx, bs); err != nil {
		return model.Booking{}, err
	}
	return bs[0], nil
}

// ListBookingsByUser returns the user's bookings, newest first, with legs.
func (r queries) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	var out []model.Booking
	if err := sqlx.SelectContext(ctx, r.q, &out, `SELECT `+bookingCols+` FROM bookings WHERE user_id = ? ORDER BY id DESC`, userID); err != nil {
		return nil, translate(err)
	}
	if err := r.attachLegs(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLegs loads reservations and flights for all bookings with one
// query per table.
func (r queries) attachLegs(ctx context.Context, bookings []model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]uint64, len(bookings))
	index := make(map[uint64]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
	}

	q, args, err := sqlx.In(`SELECT `+reservationCols+` FROM reservations WHERE booking_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	var reservations []model.Reservation
	if err := sqlx.SelectContext(ctx, r.q, &reservations, r.q.Rebind(q), args...); err != nil {
		return err
	}
	for _, res := range reservations {
		i := index[res.BookingID]
		bookings[i].Reservations = append(bookings[i].Reservations, res)
	}

	q, args, err = sqlx.In(`SELECT id, booking_id, afs_flight_id, origin, destination, departure_time, arrival_time,
		price_cents, status, created_at FROM flights WHERE booking_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	var flights []flightRow
	if err := sqlx.SelectContext(ctx, r.q, &flights, r.q.Rebind(q), args...); err != nil {
		return err
	}
	for _, f := range flights {
		i := index[f.BookingID]
		bookings[i].Flights = append(bookings[i].Flights, f.model())
	}
	return nil
}

func (t *tx) CreateBooking(ctx context.Context, b *model.Booking) error {
	created := now()
	result, err := t.q.ExecContext(ctx,
		`INSERT INTO bookings (user_id, status, total_price_cents, provider_reference, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Status, b.TotalPriceCents, b.ProviderReference, created, created)
	if err != nil {
		return translate(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID, b.CreatedAt, b.UpdatedAt = uint64(id), created, created
	return nil
}

func (t *tx) CreateFlight(ctx context.Context, f *model.Flight) error {
	const q = `INSERT INTO flights
		(booking_id, afs_flight_id, origin, destination, departure_time, arrival_time, price_cents, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	created := now()
	result, err := t.q.ExecContext(ctx, q, f.BookingID, f.AFSFlightID, f.Origin, f.Destination,
		nullTime(f.DepartureTime), nullTime(f.ArrivalTime), f.PriceCents, f.Status, created)
	if err != nil {
		return translate(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	f.ID, f.CreatedAt = uint64(id), created
	return nil
}

// SetBookingStatus updates the booking and mirrors the status onto its
// reservations and flight legs.
func (t *tx) SetBookingStatus(ctx context.Context, bookingID uint64, status string) error {
	res, err := t.q.ExecContext(ctx, `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`, status, now(), bookingID)
	if err := affected(res, err); err != nil {
		return err
	}
	resStatus := model.ReservationConfirmed
	if status == model.BookingCancelled {
		resStatus = model.ReservationCancelled
	}
	if _, err := t.q.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE booking_id = ?`, resStatus, bookingID); err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `UPDATE flights SET status = ? WHERE booking_id = ?`, status, bookingID)
	return err
}

// affected turns an UPDATE that matched no row into ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
