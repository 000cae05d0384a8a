package invoice_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/invoice"
	"github.com/iliyamo/travel-booking/internal/logging"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/queue"
	"github.com/iliyamo/travel-booking/internal/store/storetest"
)

type publisher struct {
	err    error
	events []queue.InvoiceIssuedEvent
}

func (p *publisher) PublishInvoiceIssued(ctx context.Context, ev queue.InvoiceIssuedEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func setup(t *testing.T) (*storetest.Memory, model.Booking) {
	t.Helper()
	st := storetest.New()
	h := st.AddHotel("Harbour", "Lisbon")
	rt := st.AddRoomType(h.ID, "Double", 2, 12050)
	u := st.AddUser("ana@example.com", "Ana", "Silva")
	b, err := booking.NewCommitter(st, nil, logging.Discard()).Commit(context.Background(), booking.CommitRequest{
		UserID: u.ID,
		HotelLegs: []booking.HotelLeg{{
			RoomTypeID:  rt.ID,
			CheckIn:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			CheckOut:    time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			RoomsBooked: 1,
		}},
		FlightLegs:        []booking.FlightLeg{{AFSFlightID: "F1", Origin: "LIS", Destination: "BER", PriceCents: 15025}},
		ProviderReference: "ABC123",
	})
	require.NoError(t, err)
	return st, b
}

func TestEnsureInvoiceIsIdempotent(t *testing.T) {
	st, b := setup(t)
	pub := &publisher{}
	e := invoice.NewEmitter(st, pub, "EUR", logging.Discard())
	ctx := context.Background()

	first, status, err := e.EnsureInvoice(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCreated, status)
	assert.Equal(t, b.TotalPriceCents, first.AmountCents)
	assert.Regexp(t, regexp.MustCompile(`^INV-\d{8}-[0-9A-F]{8}$`), first.Number)

	second, status, err := e.EnsureInvoice(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusExisting, status)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)

	assert.Len(t, st.Invoices(), 1)
	assert.Len(t, pub.events, 1)
}

func TestEnsureInvoiceDocument(t *testing.T) {
	st, b := setup(t)
	inv, _, err := invoice.NewEmitter(st, nil, "EUR", logging.Discard()).EnsureInvoice(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Contains(t, inv.Document, "INVOICE "+inv.Number)
	assert.Contains(t, inv.Document, "Harbour, Double 2024-06-01..2024-06-03 2 night(s) x1")
	assert.Contains(t, inv.Document, "241.00")
	assert.Contains(t, inv.Document, "Flight F1 LIS-BER")
	assert.Contains(t, inv.Document, "391.25 EUR")
	assert.Contains(t, inv.Document, "flight ref ABC123")
}

func TestEnsureInvoiceRequiresConfirmedBooking(t *testing.T) {
	st, b := setup(t)
	st.SetBookingStatus(b.ID, model.BookingPending)
	e := invoice.NewEmitter(st, nil, "EUR", logging.Discard())

	_, _, err := e.EnsureInvoice(context.Background(), b.ID)
	assert.Equal(t, errs.InvalidState, errs.KindOf(err))
	assert.Empty(t, st.Invoices())

	st.SetBookingStatus(b.ID, model.BookingCancelled)
	_, _, err = e.EnsureInvoice(context.Background(), b.ID)
	assert.Equal(t, errs.InvalidState, errs.KindOf(err))

	_, _, err = e.EnsureInvoice(context.Background(), 9999)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Empty(t, st.Invoices())
}

func TestEnsureInvoiceLosingRaceReturnsExisting(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()
	winner := model.Invoice{BookingID: b.ID, Number: "INV-20240601-WINNER00", AmountCents: b.TotalPriceCents, Currency: "EUR"}
	st.BeforeInvoiceInsert(func() {
		st.BeforeInvoiceInsert(nil)
		require.NoError(t, st.CreateInvoice(ctx, &winner))
	})

	inv, status, err := invoice.NewEmitter(st, nil, "EUR", logging.Discard()).EnsureInvoice(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusExisting, status)
	assert.Equal(t, winner.ID, inv.ID)
	assert.Len(t, st.Invoices(), 1)
}

func TestEnsureInvoiceRetriesNumberCollision(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()
	taken := model.Invoice{BookingID: b.ID + 1000, Number: "INV-20240601-AAAAAAAA", AmountCents: 1, Currency: "EUR"}
	require.NoError(t, st.CreateInvoice(ctx, &taken))

	numbers := []string{taken.Number, "INV-20240601-BBBBBBBB"}
	e := invoice.NewEmitter(st, nil, "EUR", logging.Discard()).WithNumbers(func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	})

	inv, status, err := e.EnsureInvoice(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCreated, status)
	assert.Equal(t, "INV-20240601-BBBBBBBB", inv.Number)
	assert.Contains(t, inv.Document, "INVOICE INV-20240601-BBBBBBBB")
	assert.Len(t, st.Invoices(), 2)
}

func TestEnsureInvoiceGivesUpAfterSecondCollision(t *testing.T) {
	st, b := setup(t)
	ctx := context.Background()
	taken := model.Invoice{BookingID: b.ID + 1000, Number: "INV-20240601-AAAAAAAA", AmountCents: 1, Currency: "EUR"}
	require.NoError(t, st.CreateInvoice(ctx, &taken))

	e := invoice.NewEmitter(st, nil, "EUR", logging.Discard()).WithNumbers(func(time.Time) string { return taken.Number })

	_, _, err := e.EnsureInvoice(ctx, b.ID)
	assert.Equal(t, errs.Internal, errs.KindOf(err))
	assert.Len(t, st.Invoices(), 1)
}

func TestNotificationFailureDoesNotFailInvoice(t *testing.T) {
	st, b := setup(t)
	pub := &publisher{err: errors.New("broker down")}

	inv, status, err := invoice.NewEmitter(st, pub, "EUR", logging.Discard()).EnsureInvoice(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCreated, status)
	assert.NotZero(t, inv.ID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "ana@example.com", pub.events[0].Email)
	kinds := []string{}
	for _, n := range st.Notifications() {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, model.NotificationInvoiceIssued)
}
