package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/flight"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/logging"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/queue"
	"github.com/iliyamo/travel-booking/internal/store/storetest"
)

func day(s string) time.Time {
	t, err := time.Parse(inventory.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type recorder struct {
	mu        sync.Mutex
	confirmed []queue.BookingConfirmedEvent
	partial   []queue.PartialFailureEvent
}

func (r *recorder) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, ev)
	return nil
}

func (r *recorder) PublishPartialFailure(ctx context.Context, ev queue.PartialFailureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial = append(r.partial, ev)
	return nil
}

type fakeProvider struct {
	mu          sync.Mutex
	bookCalls   int
	verifyCalls int
	book        func(flight.Traveler, string, []string) (flight.ProviderBooking, error)
	verify      func(lastName, ref string) (flight.ProviderBooking, error)
}

func (p *fakeProvider) Book(ctx context.Context, t flight.Traveler, passport string, ids []string) (flight.ProviderBooking, error) {
	p.mu.Lock()
	p.bookCalls++
	p.mu.Unlock()
	return p.book(t, passport, ids)
}

func (p *fakeProvider) Verify(ctx context.Context, lastName, ref string) (flight.ProviderBooking, error) {
	p.mu.Lock()
	p.verifyCalls++
	p.mu.Unlock()
	return p.verify(lastName, ref)
}

func bookedFlight(ref string) flight.ProviderBooking {
	return flight.ProviderBooking{
		BookingReference: ref,
		Flights: []flight.Offer{{
			ID:            "F1",
			Origin:        "LIS",
			Destination:   "BER",
			DepartureTime: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
			ArrivalTime:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			Price:         150.25,
		}},
		Raw: []byte(`{"bookingReference":"` + ref + `","flights":[{"id":"F1","origin":"LIS","destination":"BER",` +
			`"departureTime":"2024-06-01T08:00:00Z","arrivalTime":"2024-06-01T12:00:00Z","price":150.25}]}`),
	}
}

type fixture struct {
	st        *storetest.Memory
	roomType  model.RoomType
	user      auth.Identity
	events    *recorder
	provider  *fakeProvider
	committer *booking.Committer
	ledger    *inventory.Ledger
	agg       *booking.Aggregator
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	st := storetest.New()
	h := st.AddHotel("Harbour", "Lisbon")
	rt := st.AddRoomType(h.ID, "Double", capacity, 10000)
	u := st.AddUser("ana@example.com", "Ana", "Silva")
	events := &recorder{}
	provider := &fakeProvider{
		book: func(flight.Traveler, string, []string) (flight.ProviderBooking, error) {
			return bookedFlight("ABC123"), nil
		},
		verify: func(string, string) (flight.ProviderBooking, error) {
			return bookedFlight("ABC123"), nil
		},
	}
	log := logging.Discard()
	committer := booking.NewCommitter(st, events, log)
	ledger := inventory.NewLedger(st)
	return &fixture{
		st:        st,
		roomType:  rt,
		user:      auth.IdentityOf(u),
		events:    events,
		provider:  provider,
		committer: committer,
		ledger:    ledger,
		agg:       booking.NewAggregator(st, ledger, committer, provider, events, log),
	}
}

func (f *fixture) leg(in, out string, rooms int) booking.HotelLeg {
	return booking.HotelLeg{RoomTypeID: f.roomType.ID, CheckIn: day(in), CheckOut: day(out), RoomsBooked: rooms}
}

func (f *fixture) availability(t *testing.T, in, out string) []int {
	t.Helper()
	r, err := inventory.ParseDateRange(in, out)
	if err != nil {
		t.Fatal(err)
	}
	days, err := f.ledger.Availability(context.Background(), f.roomType.ID, r)
	if err != nil {
		t.Fatal(err)
	}
	out2 := make([]int, len(days))
	for i, d := range days {
		out2[i] = d.Available
	}
	return out2
}
