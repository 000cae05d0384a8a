package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/model"
)

func TestCommitRoomConsumesCapacityUntilCheckout(t *testing.T) {
	f := newFixture(t, 2)

	b, err := f.committer.CommitRoom(context.Background(), f.user.ID, f.leg("2024-06-01", "2024-06-03", 2))
	require.NoError(t, err)

	assert.Equal(t, model.BookingConfirmed, b.Status)
	require.Len(t, b.Reservations, 1)
	assert.Equal(t, 2, b.Reservations[0].RoomsBooked)
	assert.Equal(t, int64(10000), b.Reservations[0].PricePerNightCents)
	assert.Equal(t, int64(2*2*10000), b.TotalPriceCents)
	assert.Equal(t, []int{0, 0, 2}, f.availability(t, "2024-06-01", "2024-06-04"))

	notes := f.st.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationBookingConfirmed, notes[0].Kind)
	require.Len(t, f.events.confirmed, 1)
	assert.Equal(t, b.ID, f.events.confirmed[0].BookingID)
}

func TestCommitRoomRejectsWhenSoldOut(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	_, err := f.committer.CommitRoom(ctx, f.user.ID, f.leg("2024-06-01", "2024-06-03", 2))
	require.NoError(t, err)
	before := len(f.st.AllReservations())

	_, err = f.committer.CommitRoom(ctx, f.user.ID, f.leg("2024-05-31", "2024-06-02", 1))

	assert.Equal(t, errs.InsufficientInventory, errs.KindOf(err))
	assert.Len(t, f.st.AllReservations(), before)
	assert.Len(t, f.st.Bookings(), 1)
	assert.Len(t, f.st.Notifications(), 1)
}

// TestConcurrentCommitsNeverOverbook races commits for the last unit.  The
// in-memory store runs every InTx under one mutex, so this checks the
// re-validation inside the transaction rather than MySQL row locking; the
// SELECT ... FOR UPDATE path is covered by the repository sqlmock tests.
func TestConcurrentCommitsNeverOverbook(t *testing.T) {
	f := newFixture(t, 1)
	const n = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.committer.CommitRoom(context.Background(), f.user.ID, f.leg("2024-06-01", "2024-06-02", 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errs.Is(err, errs.InsufficientInventory):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflict)
	assert.Equal(t, []int{0}, f.availability(t, "2024-06-01", "2024-06-02"))
}

func TestCommitSumsDemandAcrossLegs(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.committer.Commit(context.Background(), booking.CommitRequest{
		UserID: f.user.ID,
		HotelLegs: []booking.HotelLeg{
			f.leg("2024-06-01", "2024-06-03", 2),
			f.leg("2024-06-02", "2024-06-04", 2),
		},
	})

	assert.Equal(t, errs.InsufficientInventory, errs.KindOf(err))
	assert.Empty(t, f.st.Bookings())
}

func TestCommitIsAtomic(t *testing.T) {
	f := newFixture(t, 2)
	f.st.BeforeCommit(func() error { return errors.New("connection reset") })

	_, err := f.committer.Commit(context.Background(), booking.CommitRequest{
		UserID:     f.user.ID,
		HotelLegs:  []booking.HotelLeg{f.leg("2024-06-01", "2024-06-02", 1)},
		FlightLegs: []booking.FlightLeg{{AFSFlightID: "F1", PriceCents: 5000}},
	})

	assert.Equal(t, errs.Internal, errs.KindOf(err))
	assert.Empty(t, f.st.Bookings())
	assert.Empty(t, f.st.AllReservations())
	assert.Empty(t, f.st.Notifications())
	assert.Empty(t, f.events.confirmed)
}

func TestCommitValidation(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	cases := map[string]booking.HotelLeg{
		"checkout equals checkin": f.leg("2024-06-02", "2024-06-02", 1),
		"checkout before checkin": f.leg("2024-06-03", "2024-06-02", 1),
		"no rooms":                f.leg("2024-06-01", "2024-06-02", 0),
		"no room or type":         {CheckIn: day("2024-06-01"), CheckOut: day("2024-06-02"), RoomsBooked: 1},
	}
	for name, leg := range cases {
		_, err := f.committer.CommitRoom(ctx, f.user.ID, leg)
		assert.Equal(t, errs.InvalidInput, errs.KindOf(err), name)
	}

	_, err := f.committer.Commit(ctx, booking.CommitRequest{UserID: f.user.ID})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))

	_, err = f.committer.CommitRoom(ctx, f.user.ID, booking.HotelLeg{
		RoomTypeID: 999, CheckIn: day("2024-06-01"), CheckOut: day("2024-06-02"), RoomsBooked: 1,
	})
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Empty(t, f.st.Bookings())
}

func TestCommitTotalsFlightsAndRooms(t *testing.T) {
	f := newFixture(t, 5)

	b, err := f.committer.Commit(context.Background(), booking.CommitRequest{
		UserID:            f.user.ID,
		HotelLegs:         []booking.HotelLeg{f.leg("2024-06-01", "2024-06-04", 2)},
		FlightLegs:        []booking.FlightLeg{{AFSFlightID: "F1", PriceCents: 15025}, {AFSFlightID: "F2", PriceCents: 9900}},
		ProviderReference: "ABC123",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3*2*10000+15025+9900), b.TotalPriceCents)
	require.Len(t, b.Flights, 2)
	assert.Equal(t, model.BookingConfirmed, b.Flights[0].Status)
	require.NotNil(t, b.ProviderReference)
	assert.Equal(t, "ABC123", *b.ProviderReference)
}

func TestOverrideRowsAreDecrementedAndRestored(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.st.SetOverride(f.roomType.ID, day("2024-06-02"), 1)

	assert.Equal(t, []int{10, 1}, f.availability(t, "2024-06-01", "2024-06-03"))

	b, err := f.committer.CommitRoom(ctx, f.user.ID, f.leg("2024-06-01", "2024-06-03", 1))
	require.NoError(t, err)
	n, ok := f.st.Override(f.roomType.ID, day("2024-06-02"))
	require.True(t, ok)
	assert.Equal(t, 0, n)
	assert.Equal(t, []int{9, 0}, f.availability(t, "2024-06-01", "2024-06-03"))

	_, err = f.committer.CommitRoom(ctx, f.user.ID, f.leg("2024-06-02", "2024-06-03", 1))
	assert.Equal(t, errs.InsufficientInventory, errs.KindOf(err))

	_, err = f.committer.Cancel(ctx, f.user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 1}, f.availability(t, "2024-06-01", "2024-06-03"))
}

func TestSpecificRoomStatusFollowsBooking(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	room := f.st.AddRoom(f.roomType.ID, "101")

	b, err := f.committer.CommitRoom(ctx, f.user.ID, booking.HotelLeg{
		RoomID: room.ID, CheckIn: day("2024-06-01"), CheckOut: day("2024-06-02"), RoomsBooked: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, b.Reservations[0].RoomID)
	assert.Equal(t, f.roomType.ID, b.Reservations[0].RoomTypeID)
	assert.Equal(t, model.RoomReserved, f.st.Room(room.ID).Status)

	_, err = f.committer.Cancel(ctx, f.user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomAvailable, f.st.Room(room.ID).Status)
}

func TestSpecificRoomCannotBeDoubleBooked(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	room := f.st.AddRoom(f.roomType.ID, "101")
	roomLeg := func(in, out string) booking.HotelLeg {
		return booking.HotelLeg{RoomID: room.ID, CheckIn: day(in), CheckOut: day(out), RoomsBooked: 1}
	}

	_, err := f.committer.CommitRoom(ctx, f.user.ID, roomLeg("2024-06-01", "2024-06-02"))
	require.NoError(t, err)

	_, err = f.committer.CommitRoom(ctx, f.user.ID, roomLeg("2024-06-01", "2024-06-02"))
	assert.Equal(t, errs.InsufficientInventory, errs.KindOf(err))
	assert.Len(t, f.st.Bookings(), 1)
	assert.Equal(t, []int{1}, f.availability(t, "2024-06-01", "2024-06-02"))

	_, err = f.committer.Commit(ctx, booking.CommitRequest{
		UserID:    f.user.ID,
		HotelLegs: []booking.HotelLeg{roomLeg("2024-06-05", "2024-06-07"), roomLeg("2024-06-06", "2024-06-08")},
	})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))

	// the type still has a free unit that night
	_, err = f.committer.CommitRoom(ctx, f.user.ID, f.leg("2024-06-01", "2024-06-02", 1))
	require.NoError(t, err)
}

func TestCancelKeepsRoomReservedWhileAnotherBookingHoldsIt(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	room := f.st.AddRoom(f.roomType.ID, "101")

	first, err := f.committer.CommitRoom(ctx, f.user.ID, booking.HotelLeg{
		RoomID: room.ID, CheckIn: day("2024-06-01"), CheckOut: day("2024-06-02"), RoomsBooked: 1,
	})
	require.NoError(t, err)
	second, err := f.committer.CommitRoom(ctx, f.user.ID, booking.HotelLeg{
		RoomID: room.ID, CheckIn: day("2024-06-02"), CheckOut: day("2024-06-03"), RoomsBooked: 1,
	})
	require.NoError(t, err)

	_, err = f.committer.Cancel(ctx, f.user.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomReserved, f.st.Room(room.ID).Status)

	_, err = f.committer.Cancel(ctx, f.user.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomAvailable, f.st.Room(room.ID).Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	b, err := f.committer.CommitRoom(ctx, f.user.ID, f.leg("2024-06-01", "2024-06-02", 1))
	require.NoError(t, err)

	_, err = f.committer.Cancel(ctx, f.user.ID+100, b.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	cancelled, err := f.committer.Cancel(ctx, f.user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Equal(t, model.ReservationCancelled, cancelled.Reservations[0].Status)
	assert.Equal(t, []int{1}, f.availability(t, "2024-06-01", "2024-06-02"))

	_, err = f.committer.Cancel(ctx, f.user.ID, b.ID)
	assert.Equal(t, errs.InvalidState, errs.KindOf(err))

	_, err = f.committer.Cancel(ctx, f.user.ID, 424242)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}
