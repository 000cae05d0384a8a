package storetest

import (
	"time"

	"github.com/iliyamo/travel-booking/internal/model"
)

// seed applies fn to a successor state outside of any transaction.
func (m *Memory) seed(fn func(s *state)) {
	_ = m.write(func(s *state) error {
		next := s.clone()
		fn(next)
		m.st = next
		return nil
	})
}

// AddHotel stores a hotel and returns it with its id.
func (m *Memory) AddHotel(name, city string) model.Hotel {
	var h model.Hotel
	m.seed(func(s *state) {
		h = model.Hotel{ID: s.nextID(), Name: name, City: city, CreatedAt: time.Now().UTC()}
		s.hotels[h.ID] = h
	})
	return h
}

// AddRoomType stores a room type with the given capacity and nightly price.
func (m *Memory) AddRoomType(hotelID uint64, name string, totalRooms int, priceCents int64) model.RoomType {
	var rt model.RoomType
	m.seed(func(s *state) {
		rt = model.RoomType{
			ID:                 s.nextID(),
			HotelID:            hotelID,
			Name:               name,
			TotalRooms:         totalRooms,
			PricePerNightCents: priceCents,
			CreatedAt:          time.Now().UTC(),
		}
		s.roomTypes[rt.ID] = rt
	})
	return rt
}

// AddRoom stores an AVAILABLE room of the room type.
func (m *Memory) AddRoom(roomTypeID uint64, number string) model.Room {
	var r model.Room
	m.seed(func(s *state) {
		r = model.Room{ID: s.nextID(), RoomTypeID: roomTypeID, Number: number, Status: model.RoomAvailable}
		s.rooms[r.ID] = r
	})
	return r
}

// SetOverride creates or replaces the override row for a date.
func (m *Memory) SetOverride(roomTypeID uint64, date time.Time, available int) {
	m.seed(func(s *state) {
		k := keyOf(roomTypeID, date)
		ov, ok := s.overrides[k]
		if !ok {
			ov = model.RoomAvailability{ID: s.nextID(), RoomTypeID: roomTypeID, Date: date.UTC()}
		}
		ov.AvailableRooms = available
		s.overrides[k] = ov
	})
}

// AddUser stores a user and returns it with its id.
func (m *Memory) AddUser(email, first, last string) model.User {
	var u model.User
	m.seed(func(s *state) {
		u = model.User{ID: s.nextID(), Email: email, FirstName: first, LastName: last, CreatedAt: time.Now().UTC()}
		s.users[u.ID] = u
	})
	return u
}

// SetBookingStatus changes a booking status outside the committer, for
// tests that need a booking in an unusual state.
func (m *Memory) SetBookingStatus(bookingID uint64, status string) {
	m.seed(func(s *state) {
		if b, ok := s.bookings[bookingID]; ok {
			b.Status = status
			s.bookings[bookingID] = b
		}
	})
}

// Override returns the override count for a date and whether a row exists.
func (m *Memory) Override(roomTypeID uint64, date time.Time) (int, bool) {
	ov, ok := m.view().overrides[keyOf(roomTypeID, date)]
	return ov.AvailableRooms, ok
}

// Room returns the current state of a room.
func (m *Memory) Room(id uint64) model.Room {
	return m.view().rooms[id]
}

// Bookings returns every stored booking with its legs.
func (m *Memory) Bookings() []model.Booking {
	s := m.view()
	out := make([]model.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, s.withLegs(b))
	}
	return out
}

// AllReservations returns every stored reservation regardless of status.
func (m *Memory) AllReservations() []model.Reservation {
	s := m.view()
	out := make([]model.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	return out
}

// Invoices returns every stored invoice.
func (m *Memory) Invoices() []model.Invoice {
	s := m.view()
	out := make([]model.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	return out
}

// Notifications returns every stored notification in insertion order.
func (m *Memory) Notifications() []model.Notification {
	return append([]model.Notification(nil), m.view().notifications...)
}

// Sagas returns every saga row.
func (m *Memory) Sagas() []model.FlightSaga {
	s := m.view()
	out := make([]model.FlightSaga, 0, len(s.sagas))
	for _, sg := range s.sagas {
		out = append(out, sg)
	}
	return out
}

// AgeSagas moves every saga's update time back by d so that grace periods
// elapse without sleeping.
func (m *Memory) AgeSagas(d time.Duration) {
	m.seed(func(s *state) {
		for id, sg := range s.sagas {
			sg.UpdatedAt = sg.UpdatedAt.Add(-d)
			s.sagas[id] = sg
		}
	})
}
