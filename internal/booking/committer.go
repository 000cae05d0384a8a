// Package booking turns validated booking requests into committed Booking
// aggregates.  The Committer owns every write to reservations and room
// capacity; the Aggregator composes provider flight bookings with hotel
// legs; the Reconciler settles sagas left behind by partial failures.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/queue"
	"github.com/iliyamo/travel-booking/internal/store"
)

// HotelLeg asks for rooms of one room type over [CheckIn, CheckOut).  When
// RoomID is set the leg books that specific room and RoomTypeID is derived
// from it.
type HotelLeg struct {
	RoomID      uint64    `json:"roomId,omitempty"`
	RoomTypeID  uint64    `json:"roomTypeId,omitempty"`
	CheckIn     time.Time `json:"checkInDate"`
	CheckOut    time.Time `json:"checkOutDate"`
	RoomsBooked int       `json:"roomsBooked"`
}

// FlightLeg is a provider flight snapshot to persist with the booking.
type FlightLeg struct {
	AFSFlightID   string    `json:"afsFlightId"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	ArrivalTime   time.Time `json:"arrivalTime"`
	PriceCents    int64     `json:"priceCents"`
}

// CommitRequest is the input of Committer.Commit.
type CommitRequest struct {
	UserID            uint64
	HotelLegs         []HotelLeg
	FlightLegs        []FlightLeg
	ProviderReference string
}

// Publisher receives booking events after commit.  Delivery is best-effort.
type Publisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PublishPartialFailure(ctx context.Context, ev queue.PartialFailureEvent) error
}

// Committer performs the atomic availability check and write of a booking.
// It never retries; a conflict is reported to the caller.
type Committer struct {
	store     store.Store
	publisher Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewCommitter returns a committer.  publisher may be nil.
func NewCommitter(st store.Store, publisher Publisher, log logrus.FieldLogger) *Committer {
	return &Committer{
		store:     st,
		publisher: publisher,
		log:       log.WithField("component", "committer"),
		now:       time.Now,
	}
}

// leg is a validated hotel leg with its normalised range.
type leg struct {
	HotelLeg
	rng inventory.DateRange
}

// CommitRoom books a single hotel leg for a user.
func (c *Committer) CommitRoom(ctx context.Context, userID uint64, l HotelLeg) (model.Booking, error) {
	return c.Commit(ctx, CommitRequest{UserID: userID, HotelLegs: []HotelLeg{l}})
}

// Commit validates the request, locks the affected room types, re-checks
// availability on every night of every leg and writes the booking, its
// reservations, its flight legs and a notification in one transaction.
// Nothing is written when any night would go below zero.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (model.Booking, error) {
	const op = "committer.Commit"

	legs, err := validate(req)
	if err != nil {
		return model.Booking{}, err
	}

	var booked model.Booking
	err = c.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := resolveRooms(ctx, tx, legs); err != nil {
			return err
		}

		priced, overrideDays, err := checkCapacity(ctx, tx, legs)
		if err != nil {
			return err
		}

		var total int64
		for _, l := range legs {
			total += int64(l.rng.Nights()) * int64(l.RoomsBooked) * priced[l.RoomTypeID]
		}
		for _, f := range req.FlightLegs {
			total += f.PriceCents
		}

		b := model.Booking{
			UserID:          req.UserID,
			Status:          model.BookingConfirmed,
			TotalPriceCents: total,
		}
		if req.ProviderReference != "" {
			ref := req.ProviderReference
			b.ProviderReference = &ref
		}
		if err := tx.CreateBooking(ctx, &b); err != nil {
			return err
		}

		for _, l := range legs {
			r := model.Reservation{
				BookingID:          b.ID,
				RoomTypeID:         l.RoomTypeID,
				CheckInDate:        l.rng.CheckIn,
				CheckOutDate:       l.rng.CheckOut,
				RoomsBooked:        l.RoomsBooked,
				PricePerNightCents: priced[l.RoomTypeID],
				Status:             model.ReservationConfirmed,
			}
			if l.RoomID != 0 {
				id := l.RoomID
				r.RoomID = &id
			}
			if err := tx.CreateReservation(ctx, &r); err != nil {
				return err
			}
			for _, day := range l.rng.Days() {
				if overrideDays[l.RoomTypeID][day.Unix()] {
					if err := tx.AdjustOverride(ctx, l.RoomTypeID, day, -l.RoomsBooked); err != nil {
						return err
					}
				}
			}
			if l.RoomID != 0 {
				if err := tx.SetRoomStatus(ctx, l.RoomID, model.RoomReserved); err != nil {
					return err
				}
			}
		}

		for _, f := range req.FlightLegs {
			fl := model.Flight{
				BookingID:     b.ID,
				AFSFlightID:   f.AFSFlightID,
				Origin:        f.Origin,
				Destination:   f.Destination,
				DepartureTime: f.DepartureTime.UTC(),
				ArrivalTime:   f.ArrivalTime.UTC(),
				PriceCents:    f.PriceCents,
				Status:        model.BookingConfirmed,
			}
			if err := tx.CreateFlight(ctx, &fl); err != nil {
				return err
			}
		}

		if err := tx.CreateNotification(ctx, &model.Notification{
			UserID:  req.UserID,
			Kind:    model.NotificationBookingConfirmed,
			Message: fmt.Sprintf("Booking #%d confirmed", b.ID),
		}); err != nil {
			return err
		}

		booked, err = tx.GetBooking(ctx, b.ID)
		return err
	})
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return model.Booking{}, err
		}
		return model.Booking{}, errs.Wrap(errs.Internal, op, err)
	}

	c.log.WithFields(logrus.Fields{
		"booking_id":   booked.ID,
		"user_id":      booked.UserID,
		"reservations": len(booked.Reservations),
		"flights":      len(booked.Flights),
		"total_cents":  booked.TotalPriceCents,
	}).Info("booking committed")
	c.publishConfirmed(ctx, booked)
	return booked, nil
}

// Cancel marks a booking and all of its legs CANCELLED, returns override
// capacity and releases explicitly booked rooms.
func (c *Committer) Cancel(ctx context.Context, userID, bookingID uint64) (model.Booking, error) {
	const op = "committer.Cancel"

	var cancelled model.Booking
	err := c.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && b.UserID != userID) {
			return errs.Errorf(errs.NotFound, op, "booking %d not found", bookingID)
		}
		if err != nil {
			return err
		}
		if b.Status == model.BookingCancelled {
			return errs.Errorf(errs.InvalidState, op, "booking %d is already cancelled", bookingID)
		}

		ids := make([]uint64, 0, len(b.Reservations))
		seen := map[uint64]bool{}
		for _, r := range b.Reservations {
			if !seen[r.RoomTypeID] {
				seen[r.RoomTypeID] = true
				ids = append(ids, r.RoomTypeID)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if _, err := tx.LockRoomType(ctx, id); err != nil {
				return err
			}
		}

		if err := tx.SetBookingStatus(ctx, b.ID, model.BookingCancelled); err != nil {
			return err
		}
		for _, r := range b.Reservations {
			if r.Status != model.ReservationConfirmed {
				continue
			}
			rng := inventory.DateRange{CheckIn: r.CheckInDate, CheckOut: r.CheckOutDate}
			for _, day := range rng.Days() {
				if err := tx.AdjustOverride(ctx, r.RoomTypeID, day, r.RoomsBooked); err != nil {
					return err
				}
			}
			if r.RoomID != nil {
				held, err := roomHeld(ctx, tx, r.RoomTypeID, *r.RoomID)
				if err != nil {
					return err
				}
				if held {
					continue
				}
				if err := tx.SetRoomStatus(ctx, *r.RoomID, model.RoomAvailable); err != nil {
					return err
				}
			}
		}
		if err := tx.CreateNotification(ctx, &model.Notification{
			UserID:  b.UserID,
			Kind:    model.NotificationBookingCancelled,
			Message: fmt.Sprintf("Booking #%d cancelled", b.ID),
		}); err != nil {
			return err
		}
		cancelled, err = tx.GetBooking(ctx, b.ID)
		return err
	})
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return model.Booking{}, err
		}
		return model.Booking{}, errs.Wrap(errs.Internal, op, err)
	}
	c.log.WithFields(logrus.Fields{"booking_id": bookingID, "user_id": userID}).Info("booking cancelled")
	return cancelled, nil
}

func (c *Committer) publishConfirmed(ctx context.Context, b model.Booking) {
	if c.publisher == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:       b.ID,
		UserID:          b.UserID,
		TotalPriceCents: b.TotalPriceCents,
		ConfirmedAt:     c.now().UTC().Format(time.RFC3339),
		Hotels:          []string{},
		Flights:         []string{},
	}
	if b.ProviderReference != nil {
		ev.ProviderReference = *b.ProviderReference
	}
	for _, r := range b.Reservations {
		ev.Hotels = append(ev.Hotels, fmt.Sprintf("room_type=%d %s..%s x%d",
			r.RoomTypeID, r.CheckInDate.Format(inventory.DateLayout), r.CheckOutDate.Format(inventory.DateLayout), r.RoomsBooked))
	}
	for _, f := range b.Flights {
		ev.Flights = append(ev.Flights, fmt.Sprintf("%s %s-%s", f.AFSFlightID, f.Origin, f.Destination))
	}
	if err := c.publisher.PublishBookingConfirmed(ctx, ev); err != nil {
		c.log.WithError(err).WithField("booking_id", b.ID).Warn("publish booking.confirmed failed")
	}
}

// validate checks the request shape before any lock is taken.
func validate(req CommitRequest) ([]leg, error) {
	const op = "committer.validate"
	if req.UserID == 0 {
		return nil, errs.E(errs.InvalidInput, op, "user is required")
	}
	if len(req.HotelLegs) == 0 && len(req.FlightLegs) == 0 {
		return nil, errs.E(errs.InvalidInput, op, "booking has no legs")
	}
	legs := make([]leg, 0, len(req.HotelLegs))
	for i, h := range req.HotelLegs {
		if h.RoomID == 0 && h.RoomTypeID == 0 {
			return nil, errs.Errorf(errs.InvalidInput, op, "hotel leg %d: roomId or roomTypeId is required", i)
		}
		if h.RoomsBooked < 1 {
			return nil, errs.Errorf(errs.InvalidInput, op, "hotel leg %d: roomsBooked must be at least 1", i)
		}
		if h.RoomID != 0 && h.RoomsBooked != 1 {
			return nil, errs.Errorf(errs.InvalidInput, op, "hotel leg %d: a specific room can only be booked once", i)
		}
		rng, err := inventory.NewDateRange(h.CheckIn, h.CheckOut)
		if err != nil {
			return nil, errs.Errorf(errs.InvalidInput, op, "hotel leg %d: %s", i, errs.Message(err))
		}
		legs = append(legs, leg{HotelLeg: h, rng: rng})
	}
	for i, f := range req.FlightLegs {
		if f.AFSFlightID == "" {
			return nil, errs.Errorf(errs.InvalidInput, op, "flight leg %d: flight id is required", i)
		}
		if f.PriceCents < 0 {
			return nil, errs.Errorf(errs.InvalidInput, op, "flight leg %d: negative price", i)
		}
	}
	return legs, nil
}

// resolveRooms fills RoomTypeID for legs that name a specific room.
func resolveRooms(ctx context.Context, tx store.Tx, legs []leg) error {
	const op = "committer.Commit"
	for i := range legs {
		if legs[i].RoomID == 0 {
			continue
		}
		room, err := tx.GetRoom(ctx, legs[i].RoomID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.Errorf(errs.NotFound, op, "room %d not found", legs[i].RoomID)
		}
		if err != nil {
			return err
		}
		if legs[i].RoomTypeID != 0 && legs[i].RoomTypeID != room.RoomTypeID {
			return errs.Errorf(errs.InvalidInput, op, "room %d does not belong to room type %d", room.ID, legs[i].RoomTypeID)
		}
		if room.Status == model.RoomMaintenance {
			return errs.Errorf(errs.InsufficientInventory, op, "room %d is under maintenance", room.ID)
		}
		legs[i].RoomTypeID = room.RoomTypeID
	}
	return nil
}

// checkCapacity locks every room type in ascending id order, recomputes
// availability from rows read under the lock and compares it with the
// summed demand.  It returns the locked nightly prices and, per room type,
// the nights that carry an override row.
func checkCapacity(ctx context.Context, tx store.Tx, legs []leg) (map[uint64]int64, map[uint64]map[int64]bool, error) {
	const op = "committer.Commit"

	byType := map[uint64][]leg{}
	for _, l := range legs {
		byType[l.RoomTypeID] = append(byType[l.RoomTypeID], l)
	}
	ids := make([]uint64, 0, len(byType))
	for id := range byType {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	prices := make(map[uint64]int64, len(ids))
	overrideDays := make(map[uint64]map[int64]bool, len(ids))
	for _, id := range ids {
		rt, err := tx.LockRoomType(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, errs.Errorf(errs.NotFound, op, "room type %d not found", id)
		}
		if err != nil {
			return nil, nil, err
		}
		prices[id] = rt.PricePerNightCents

		group := byType[id]
		span := group[0].rng
		demand := inventory.Demand{}
		for _, l := range group {
			span = span.Union(l.rng)
			demand.Add(l.rng, l.RoomsBooked)
		}

		reservations, err := tx.ListReservations(ctx, id, span.CheckIn, span.CheckOut)
		if err != nil {
			return nil, nil, err
		}
		overrides, err := tx.ListOverrides(ctx, id, span.CheckIn, span.CheckOut)
		if err != nil {
			return nil, nil, err
		}
		days := inventory.Compute(rt, span, reservations, overrides)
		if day, short := demand.Shortfall(days); short {
			return nil, nil, errs.Errorf(errs.InsufficientInventory, op,
				"room type %d has not enough rooms on %s", id, day.Format(inventory.DateLayout))
		}
		if err := checkRooms(group, reservations); err != nil {
			return nil, nil, err
		}

		marks := make(map[int64]bool, len(overrides))
		for _, o := range overrides {
			marks[inventory.Day(o.Date).Unix()] = true
		}
		overrideDays[id] = marks
	}
	return prices, overrideDays, nil
}

// checkRooms rejects legs naming a room that a confirmed reservation, or
// another leg of the same request, already holds on an overlapping night.
func checkRooms(group []leg, reservations []model.Reservation) error {
	const op = "committer.Commit"
	for i, l := range group {
		if l.RoomID == 0 {
			continue
		}
		for _, r := range reservations {
			if r.RoomID == nil || *r.RoomID != l.RoomID {
				continue
			}
			if r.CheckInDate.Before(l.rng.CheckOut) && r.CheckOutDate.After(l.rng.CheckIn) {
				return errs.Errorf(errs.InsufficientInventory, op, "room %d is already booked for %s..%s",
					l.RoomID, l.rng.CheckIn.Format(inventory.DateLayout), l.rng.CheckOut.Format(inventory.DateLayout))
			}
		}
		for _, o := range group[i+1:] {
			if o.RoomID == l.RoomID && o.rng.CheckIn.Before(l.rng.CheckOut) && o.rng.CheckOut.After(l.rng.CheckIn) {
				return errs.Errorf(errs.InvalidInput, op, "room %d is booked twice for overlapping nights", l.RoomID)
			}
		}
	}
	return nil
}

// Bounds for asking whether a room is held on any night at all.
var (
	anyFrom = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	anyTo   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// roomHeld reports whether a confirmed reservation still names the room.
// The caller's own reservations must already be cancelled.
func roomHeld(ctx context.Context, tx store.Tx, roomTypeID, roomID uint64) (bool, error) {
	reservations, err := tx.ListReservations(ctx, roomTypeID, anyFrom, anyTo)
	if err != nil {
		return false, err
	}
	for _, r := range reservations {
		if r.RoomID != nil && *r.RoomID == roomID {
			return true, nil
		}
	}
	return false, nil
}
