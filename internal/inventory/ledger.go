// Package inventory computes room availability.  The computation is pure
// and shared between the read-only Ledger and the reservation committer,
// which runs it again on rows re-read under lock.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/store"
)

// DayAvailability is the number of rooms still free on one night.
type DayAvailability struct {
	Date      time.Time `json:"date"`
	Available int       `json:"available"`
}

// Compute returns availability for every night of r.  A night with an
// override row takes the row's count as is; any other night is the room
// type's capacity minus the rooms held by CONFIRMED reservations covering
// it.  Reservations and overrides outside the range are ignored.
func Compute(rt model.RoomType, r DateRange, reservations []model.Reservation, overrides []model.RoomAvailability) []DayAvailability {
	ov := make(map[int64]int, len(overrides))
	for _, o := range overrides {
		ov[Day(o.Date).Unix()] = o.AvailableRooms
	}
	days := r.Days()
	out := make([]DayAvailability, len(days))
	for i, d := range days {
		if n, ok := ov[d.Unix()]; ok {
			out[i] = DayAvailability{Date: d, Available: n}
			continue
		}
		booked := 0
		for _, res := range reservations {
			if res.Status != model.ReservationConfirmed {
				continue
			}
			if !d.Before(Day(res.CheckInDate)) && d.Before(Day(res.CheckOutDate)) {
				booked += res.RoomsBooked
			}
		}
		out[i] = DayAvailability{Date: d, Available: rt.TotalRooms - booked}
	}
	return out
}

// Min returns the smallest availability across days, or 0 for none.
func Min(days []DayAvailability) int {
	if len(days) == 0 {
		return 0
	}
	m := days[0].Available
	for _, d := range days[1:] {
		if d.Available < m {
			m = d.Available
		}
	}
	return m
}

// Demand accumulates requested rooms per night for one room type.
type Demand map[int64]int

// Add records rooms requested for every night of r.
func (d Demand) Add(r DateRange, rooms int) {
	for _, day := range r.Days() {
		d[day.Unix()] += rooms
	}
}

// Shortfall returns the first night on which demand exceeds availability.
func (d Demand) Shortfall(days []DayAvailability) (time.Time, bool) {
	for _, day := range days {
		if want := d[day.Date.Unix()]; want > 0 && day.Available-want < 0 {
			return day.Date, true
		}
	}
	return time.Time{}, false
}

// Ledger answers availability queries from committed state.  Its answers
// are advisory: a write must re-check under transaction.
type Ledger struct {
	store store.Reader
}

// NewLedger returns a ledger reading from r.
func NewLedger(r store.Reader) *Ledger {
	return &Ledger{store: r}
}

// Availability returns the free room count of a room type for every night
// of the range.
func (l *Ledger) Availability(ctx context.Context, roomTypeID uint64, r DateRange) ([]DayAvailability, error) {
	const op = "inventory.Availability"
	if !r.CheckOut.After(r.CheckIn) {
		return nil, errs.E(errs.InvalidRange, op, "checkOutDate must be after checkInDate")
	}
	rt, err := l.store.GetRoomType(ctx, roomTypeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.Errorf(errs.NotFound, op, "room type %d not found", roomTypeID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	reservations, err := l.store.ListReservations(ctx, roomTypeID, r.CheckIn, r.CheckOut)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	overrides, err := l.store.ListOverrides(ctx, roomTypeID, r.CheckIn, r.CheckOut)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, op, err)
	}
	return Compute(rt, r, reservations, overrides), nil
}
