package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/store/storetest"
)

func date(s string) time.Time {
	t, err := time.Parse(inventory.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rng(t *testing.T, in, out string) inventory.DateRange {
	t.Helper()
	r, err := inventory.ParseDateRange(in, out)
	require.NoError(t, err)
	return r
}

func counts(days []inventory.DayAvailability) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = d.Available
	}
	return out
}

func TestComputeCheckoutIsExclusive(t *testing.T) {
	rt := model.RoomType{ID: 1, TotalRooms: 2}
	res := []model.Reservation{{
		RoomTypeID:   1,
		CheckInDate:  date("2024-06-01"),
		CheckOutDate: date("2024-06-03"),
		RoomsBooked:  2,
		Status:       model.ReservationConfirmed,
	}}

	days := inventory.Compute(rt, rng(t, "2024-06-01", "2024-06-04"), res, nil)

	assert.Equal(t, []int{0, 0, 2}, counts(days))
	assert.Equal(t, date("2024-06-03"), days[2].Date)
}

func TestComputeIgnoresCancelledReservations(t *testing.T) {
	rt := model.RoomType{ID: 1, TotalRooms: 3}
	res := []model.Reservation{
		{CheckInDate: date("2024-06-01"), CheckOutDate: date("2024-06-02"), RoomsBooked: 1, Status: model.ReservationConfirmed},
		{CheckInDate: date("2024-06-01"), CheckOutDate: date("2024-06-02"), RoomsBooked: 2, Status: model.ReservationCancelled},
	}

	days := inventory.Compute(rt, rng(t, "2024-06-01", "2024-06-02"), res, nil)

	assert.Equal(t, []int{2}, counts(days))
}

func TestComputeOverrideIsAuthoritative(t *testing.T) {
	rt := model.RoomType{ID: 1, TotalRooms: 10}
	res := []model.Reservation{{
		CheckInDate:  date("2024-06-01"),
		CheckOutDate: date("2024-06-03"),
		RoomsBooked:  4,
		Status:       model.ReservationConfirmed,
	}}
	ov := []model.RoomAvailability{{RoomTypeID: 1, Date: date("2024-06-02"), AvailableRooms: 1}}

	days := inventory.Compute(rt, rng(t, "2024-06-01", "2024-06-03"), res, ov)

	// The override is taken as is and does not count override rows.
	assert.Equal(t, []int{6, 1}, counts(days))
}

func TestDemandShortfall(t *testing.T) {
	days := []inventory.DayAvailability{
		{Date: date("2024-06-01"), Available: 2},
		{Date: date("2024-06-02"), Available: 1},
	}
	d := inventory.Demand{}
	d.Add(rng(t, "2024-06-01", "2024-06-03"), 1)

	_, short := d.Shortfall(days)
	assert.False(t, short)

	d.Add(rng(t, "2024-06-02", "2024-06-03"), 1)
	day, short := d.Shortfall(days)
	assert.True(t, short)
	assert.Equal(t, date("2024-06-02"), day)
}

func TestParseDateRange(t *testing.T) {
	_, err := inventory.ParseDateRange("2024-06-03", "2024-06-03")
	assert.Equal(t, errs.InvalidRange, errs.KindOf(err))

	_, err = inventory.ParseDateRange("2024-06-03", "2024-06-01")
	assert.Equal(t, errs.InvalidRange, errs.KindOf(err))

	_, err = inventory.ParseDateRange("06/01/2024", "2024-06-03")
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))

	_, err = inventory.ParseDateRange("2024-01-01", "2025-06-01")
	assert.Equal(t, errs.InvalidRange, errs.KindOf(err))

	r := rng(t, "2024-06-01", "2024-06-04")
	assert.Equal(t, 3, r.Nights())
	assert.Len(t, r.Days(), 3)
}

func TestDateRangeNormalisesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	r, err := inventory.NewDateRange(
		time.Date(2024, 6, 1, 13, 30, 0, 0, loc),
		time.Date(2024, 6, 2, 8, 0, 0, 0, loc),
	)
	require.NoError(t, err)
	assert.Equal(t, date("2024-06-01"), r.CheckIn)
	assert.Equal(t, date("2024-06-02"), r.CheckOut)
}

func TestLedgerAvailability(t *testing.T) {
	ctx := context.Background()
	st := storetest.New()
	h := st.AddHotel("Harbour", "Lisbon")
	rt := st.AddRoomType(h.ID, "Double", 2, 12000)
	st.SetOverride(rt.ID, date("2024-06-02"), 0)

	days, err := inventory.NewLedger(st).Availability(ctx, rt.ID, rng(t, "2024-06-01", "2024-06-04"))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 2}, counts(days))
	assert.Equal(t, 0, inventory.Min(days))
}

func TestLedgerErrors(t *testing.T) {
	ctx := context.Background()
	st := storetest.New()
	ledger := inventory.NewLedger(st)

	_, err := ledger.Availability(ctx, 42, rng(t, "2024-06-01", "2024-06-02"))
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	bad := inventory.DateRange{CheckIn: date("2024-06-02"), CheckOut: date("2024-06-01")}
	_, err = ledger.Availability(ctx, 42, bad)
	assert.Equal(t, errs.InvalidRange, errs.KindOf(err))
}
