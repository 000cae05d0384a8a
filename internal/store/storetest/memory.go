// Package storetest provides an in-memory store.Store for tests.
//
// Transactions are serialized by a single mutex and work on a private copy
// of the data that replaces the shared copy only on commit, so a failed
// callback leaves no trace.  This mirrors the row locks and rollback
// behaviour the MySQL implementation gets from the database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/store"
)

type overrideKey struct {
	roomTypeID uint64
	day        int64
}

func keyOf(roomTypeID uint64, date time.Time) overrideKey {
	return overrideKey{roomTypeID: roomTypeID, day: date.UTC().Unix()}
}

type state struct {
	seq           uint64
	hotels        map[uint64]model.Hotel
	roomTypes     map[uint64]model.RoomType
	rooms         map[uint64]model.Room
	overrides     map[overrideKey]model.RoomAvailability
	bookings      map[uint64]model.Booking
	reservations  map[uint64]model.Reservation
	flights       map[uint64]model.Flight
	invoices      map[uint64]model.Invoice
	notifications []model.Notification
	users         map[uint64]model.User
	sagas         map[uint64]model.FlightSaga
}

func newState() *state {
	return &state{
		hotels:       map[uint64]model.Hotel{},
		roomTypes:    map[uint64]model.RoomType{},
		rooms:        map[uint64]model.Room{},
		overrides:    map[overrideKey]model.RoomAvailability{},
		bookings:     map[uint64]model.Booking{},
		reservations: map[uint64]model.Reservation{},
		flights:      map[uint64]model.Flight{},
		invoices:     map[uint64]model.Invoice{},
		users:        map[uint64]model.User{},
		sagas:        map[uint64]model.FlightSaga{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		seq:           s.seq,
		hotels:        cloneMap(s.hotels),
		roomTypes:     cloneMap(s.roomTypes),
		rooms:         cloneMap(s.rooms),
		overrides:     cloneMap(s.overrides),
		bookings:      cloneMap(s.bookings),
		reservations:  cloneMap(s.reservations),
		flights:       cloneMap(s.flights),
		invoices:      cloneMap(s.invoices),
		notifications: append([]model.Notification(nil), s.notifications...),
		users:         cloneMap(s.users),
		sagas:         cloneMap(s.sagas),
	}
}

func (s *state) nextID() uint64 {
	s.seq++
	return s.seq
}

// Memory is an in-memory store.Store.  The zero value is not usable; call
// New.
type Memory struct {
	txMu sync.Mutex // serializes writers
	mu   sync.Mutex // guards st
	st   *state

	reads atomic.Int64

	beforeCommit        func() error
	beforeInvoiceInsert func()
}

var _ store.Store = (*Memory)(nil)

// New returns an empty store.
func New() *Memory {
	return &Memory{st: newState()}
}

// BeforeCommit installs a hook that runs after a transaction callback
// succeeded and before its writes become visible.  A non-nil error from the
// hook aborts the transaction.
func (m *Memory) BeforeCommit(fn func() error) { m.beforeCommit = fn }

// BeforeInvoiceInsert installs a hook that runs at the start of
// CreateInvoice, before any lock is taken.
func (m *Memory) BeforeInvoiceInsert(fn func()) { m.beforeInvoiceInsert = fn }

// Reads reports how many read calls reached the store.
func (m *Memory) Reads() int64 { return m.reads.Load() }

func (m *Memory) view() *state {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// write runs fn against the shared state as a single auto-committed
// statement.
func (m *Memory) write(fn func(s *state) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

// InTx implements store.Store.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	work := m.st.clone()
	m.mu.Unlock()

	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.beforeCommit != nil {
		if err := m.beforeCommit(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.st = work
	m.mu.Unlock()
	return nil
}

// Reader methods.  The shared state pointer is only ever swapped, never
// mutated in place by a transaction, so reading a snapshot without holding
// the lock is safe.

func (m *Memory) GetRoomType(ctx context.Context, id uint64) (model.RoomType, error) {
	return m.view().getRoomType(id)
}

func (m *Memory) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	return m.view().getRoom(id)
}

func (m *Memory) ListReservations(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.Reservation, error) {
	return m.view().listReservations(roomTypeID, from, to), nil
}

func (m *Memory) ListOverrides(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.RoomAvailability, error) {
	return m.view().listOverrides(roomTypeID, from, to), nil
}

func (m *Memory) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return m.view().getBooking(id)
}

func (m *Memory) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return m.view().listBookingsByUser(userID), nil
}

func (m *Memory) GetInvoiceByBooking(ctx context.Context, bookingID uint64) (model.Invoice, error) {
	return m.view().getInvoiceByBooking(bookingID)
}

func (m *Memory) GetUser(ctx context.Context, id uint64) (model.User, error) {
	return m.view().getUser(id)
}

// CreateInvoice implements store.Store.
func (m *Memory) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	if m.beforeInvoiceInsert != nil {
		m.beforeInvoiceInsert()
	}
	return m.write(func(s *state) error {
		for _, existing := range s.invoices {
			if existing.BookingID == inv.BookingID || existing.Number == inv.Number {
				return store.ErrDuplicate
			}
		}
		// A successor state keeps earlier snapshots immutable.
		next := s.clone()
		inv.ID = next.nextID()
		inv.CreatedAt = time.Now().UTC()
		next.invoices[inv.ID] = *inv
		m.st = next
		return nil
	})
}

// CreateNotification implements store.Store.
func (m *Memory) CreateNotification(ctx context.Context, n *model.Notification) error {
	return m.write(func(s *state) error {
		next := s.clone()
		next.addNotification(n)
		m.st = next
		return nil
	})
}

// CreateSaga implements store.SagaStore.
func (m *Memory) CreateSaga(ctx context.Context, sg *model.FlightSaga) error {
	return m.write(func(s *state) error {
		next := s.clone()
		now := time.Now().UTC()
		sg.ID = next.nextID()
		sg.CreatedAt, sg.UpdatedAt = now, now
		next.sagas[sg.ID] = *sg
		m.st = next
		return nil
	})
}

// UpdateSaga implements store.SagaStore.
func (m *Memory) UpdateSaga(ctx context.Context, sg *model.FlightSaga) error {
	return m.write(func(s *state) error {
		old, ok := s.sagas[sg.ID]
		if !ok {
			return store.ErrNotFound
		}
		next := s.clone()
		sg.CreatedAt = old.CreatedAt
		sg.UpdatedAt = time.Now().UTC()
		next.sagas[sg.ID] = *sg
		m.st = next
		return nil
	})
}

// GetSaga implements store.SagaStore.
func (m *Memory) GetSaga(ctx context.Context, id uint64) (model.FlightSaga, error) {
	sg, ok := m.view().sagas[id]
	if !ok {
		return model.FlightSaga{}, store.ErrNotFound
	}
	return sg, nil
}

// ListSagas implements store.SagaStore.
func (m *Memory) ListSagas(ctx context.Context, statuses []string, updatedBefore time.Time, limit int) ([]model.FlightSaga, error) {
	want := map[string]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []model.FlightSaga
	for _, sg := range m.view().sagas {
		if want[sg.Status] && sg.UpdatedAt.Before(updatedBefore) {
			out = append(out, sg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memTx is a store.Tx over a private copy of the state.
type memTx struct {
	st *state
}

func (t *memTx) GetRoomType(ctx context.Context, id uint64) (model.RoomType, error) {
	return t.st.getRoomType(id)
}

func (t *memTx) GetRoom(ctx context.Context, id uint64) (model.Room, error) {
	return t.st.getRoom(id)
}

func (t *memTx) ListReservations(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.Reservation, error) {
	return t.st.listReservations(roomTypeID, from, to), nil
}

func (t *memTx) ListOverrides(ctx context.Context, roomTypeID uint64, from, to time.Time) ([]model.RoomAvailability, error) {
	return t.st.listOverrides(roomTypeID, from, to), nil
}

func (t *memTx) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.st.getBooking(id)
}

func (t *memTx) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return t.st.listBookingsByUser(userID), nil
}

func (t *memTx) GetInvoiceByBooking(ctx context.Context, bookingID uint64) (model.Invoice, error) {
	return t.st.getInvoiceByBooking(bookingID)
}

func (t *memTx) GetUser(ctx context.Context, id uint64) (model.User, error) {
	return t.st.getUser(id)
}

func (t *memTx) LockRoomType(ctx context.Context, id uint64) (model.RoomType, error) {
	return t.st.getRoomType(id)
}

func (t *memTx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.st.getBooking(id)
}

func (t *memTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	now := time.Now().UTC()
	b.ID = t.st.nextID()
	b.CreatedAt, b.UpdatedAt = now, now
	row := *b
	row.Reservations, row.Flights = nil, nil
	t.st.bookings[b.ID] = row
	return nil
}

func (t *memTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if _, ok := t.st.bookings[r.BookingID]; !ok {
		return store.ErrNotFound
	}
	r.ID = t.st.nextID()
	r.CreatedAt = time.Now().UTC()
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *memTx) CreateFlight(ctx context.Context, f *model.Flight) error {
	if _, ok := t.st.bookings[f.BookingID]; !ok {
		return store.ErrNotFound
	}
	f.ID = t.st.nextID()
	f.CreatedAt = time.Now().UTC()
	t.st.flights[f.ID] = *f
	return nil
}

func (t *memTx) SetBookingStatus(ctx context.Context, bookingID uint64, status string) error {
	b, ok := t.st.bookings[bookingID]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	t.st.bookings[bookingID] = b
	resStatus := model.ReservationConfirmed
	if status == model.BookingCancelled {
		resStatus = model.ReservationCancelled
	}
	for id, r := range t.st.reservations {
		if r.BookingID == bookingID {
			r.Status = resStatus
			t.st.reservations[id] = r
		}
	}
	for id, f := range t.st.flights {
		if f.BookingID == bookingID {
			f.Status = status
			t.st.flights[id] = f
		}
	}
	return nil
}

func (t *memTx) AdjustOverride(ctx context.Context, roomTypeID uint64, date time.Time, delta int) error {
	k := keyOf(roomTypeID, date)
	ov, ok := t.st.overrides[k]
	if !ok {
		return nil
	}
	ov.AvailableRooms += delta
	t.st.overrides[k] = ov
	return nil
}

func (t *memTx) SetRoomStatus(ctx context.Context, roomID uint64, status string) error {
	r, ok := t.st.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	t.st.rooms[roomID] = r
	return nil
}

func (t *memTx) CreateNotification(ctx context.Context, n *model.Notification) error {
	t.st.addNotification(n)
	return nil
}

// state queries shared by Memory and memTx.

func (s *state) getRoomType(id uint64) (model.RoomType, error) {
	rt, ok := s.roomTypes[id]
	if !ok {
		return model.RoomType{}, store.ErrNotFound
	}
	if h, ok := s.hotels[rt.HotelID]; ok {
		rt.HotelName = h.Name
	}
	return rt, nil
}

func (s *state) getRoom(id uint64) (model.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return model.Room{}, store.ErrNotFound
	}
	return r, nil
}

func (s *state) listReservations(roomTypeID uint64, from, to time.Time) []model.Reservation {
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.RoomTypeID != roomTypeID || r.Status != model.ReservationConfirmed {
			continue
		}
		if r.CheckInDate.Before(to) && r.CheckOutDate.After(from) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) listOverrides(roomTypeID uint64, from, to time.Time) []model.RoomAvailability {
	var out []model.RoomAvailability
	for _, ov := range s.overrides {
		if ov.RoomTypeID == roomTypeID && !ov.Date.Before(from) && ov.Date.Before(to) {
			out = append(out, ov)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *state) getBooking(id uint64) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	return s.withLegs(b), nil
}

func (s *state) withLegs(b model.Booking) model.Booking {
	b.Reservations, b.Flights = nil, nil
	for _, r := range s.reservations {
		if r.BookingID == b.ID {
			b.Reservations = append(b.Reservations, r)
		}
	}
	for _, f := range s.flights {
		if f.BookingID == b.ID {
			b.Flights = append(b.Flights, f)
		}
	}
	sort.Slice(b.Reservations, func(i, j int) bool { return b.Reservations[i].ID < b.Reservations[j].ID })
	sort.Slice(b.Flights, func(i, j int) bool { return b.Flights[i].ID < b.Flights[j].ID })
	return b
}

func (s *state) listBookingsByUser(userID uint64) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, s.withLegs(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *state) getInvoiceByBooking(bookingID uint64) (model.Invoice, error) {
	for _, inv := range s.invoices {
		if inv.BookingID == bookingID {
			return inv, nil
		}
	}
	return model.Invoice{}, store.ErrNotFound
}

func (s *state) getUser(id uint64) (model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *state) addNotification(n *model.Notification) {
	n.ID = s.nextID()
	n.CreatedAt = time.Now().UTC()
	s.notifications = append(s.notifications, *n)
}
