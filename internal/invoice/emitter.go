// Package invoice issues exactly one invoice per confirmed booking and
// notifies the user about it.  The invoice row is the durable part; the
// notification row and the invoice.issued event are best-effort.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/queue"
	"github.com/iliyamo/travel-booking/internal/store"
)

// Status tells whether EnsureInvoice created the invoice or found it.
type Status string

const (
	StatusCreated  Status = "created"
	StatusExisting Status = "existing"
)

// Publisher receives invoice events.
type Publisher interface {
	PublishInvoiceIssued(ctx context.Context, ev queue.InvoiceIssuedEvent) error
}

// Emitter creates invoices.
type Emitter struct {
	store     store.Store
	publisher Publisher
	currency  string
	log       logrus.FieldLogger
	now       func() time.Time
	number    func(time.Time) string
}

// NewEmitter returns an emitter billing in currency.  publisher may be nil.
func NewEmitter(st store.Store, publisher Publisher, currency string, log logrus.FieldLogger) *Emitter {
	if currency == "" {
		currency = "EUR"
	}
	return &Emitter{
		store:     st,
		publisher: publisher,
		currency:  currency,
		log:       log.WithField("component", "invoice"),
		now:       time.Now,
		number:    newNumber,
	}
}

// EnsureInvoice returns the booking's invoice, creating it on first call.
// Concurrent callers race on the unique booking key; the loser re-reads and
// reports StatusExisting.  Only CONFIRMED bookings are invoiced.
func (e *Emitter) EnsureInvoice(ctx context.Context, bookingID uint64) (model.Invoice, Status, error) {
	const op = "invoice.EnsureInvoice"

	inv, err := e.store.GetInvoiceByBooking(ctx, bookingID)
	if err == nil {
		return inv, StatusExisting, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Invoice{}, "", errs.Wrap(errs.Internal, op, err)
	}

	b, err := e.store.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Invoice{}, "", errs.Errorf(errs.NotFound, op, "booking %d not found", bookingID)
	}
	if err != nil {
		return model.Invoice{}, "", errs.Wrap(errs.Internal, op, err)
	}
	if b.Status != model.BookingConfirmed {
		return model.Invoice{}, "", errs.Errorf(errs.InvalidState, op, "booking %d is %s, only confirmed bookings are invoiced", b.ID, b.Status)
	}

	user, err := e.store.GetUser(ctx, b.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.Invoice{}, "", errs.Wrap(errs.Internal, op, err)
	}

	// A duplicate key is either a concurrent caller that invoiced the
	// booking first or a collision on the random number.  The latter gets
	// one fresh number.
	now := e.now().UTC()
	for attempt := 1; ; attempt++ {
		inv = model.Invoice{
			BookingID:   b.ID,
			Number:      e.number(now),
			AmountCents: b.TotalPriceCents,
			Currency:    e.currency,
		}
		inv.Document, err = render(e.document(ctx, b, user, inv, now))
		if err != nil {
			return model.Invoice{}, "", errs.Wrap(errs.Internal, op, err)
		}

		err = e.store.CreateInvoice(ctx, &inv)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return model.Invoice{}, "", errs.Wrap(errs.Internal, op, err)
		}
		existing, rerr := e.store.GetInvoiceByBooking(ctx, bookingID)
		if rerr == nil {
			return existing, StatusExisting, nil
		}
		if !errors.Is(rerr, store.ErrNotFound) || attempt == 2 {
			return model.Invoice{}, "", errs.Wrap(errs.Internal, op, err)
		}
		e.log.WithFields(logrus.Fields{"booking_id": b.ID, "number": inv.Number}).Warn("invoice number collision, retrying")
	}

	e.log.WithFields(logrus.Fields{"booking_id": b.ID, "invoice_id": inv.ID, "number": inv.Number}).Info("invoice issued")
	e.notify(ctx, b, user, inv)
	return inv, StatusCreated, nil
}

func (e *Emitter) document(ctx context.Context, b model.Booking, u model.User, inv model.Invoice, now time.Time) document {
	d := document{
		Number:     inv.Number,
		Issued:     now.Format(time.RFC3339),
		BookingID:  b.ID,
		Customer:   fmt.Sprintf("%s %s <%s>", u.FirstName, u.LastName, u.Email),
		TotalCents: b.TotalPriceCents,
		Currency:   inv.Currency,
	}
	if b.ProviderReference != nil {
		d.ProviderReference = *b.ProviderReference
	}
	for _, r := range b.Reservations {
		name := fmt.Sprintf("room type %d", r.RoomTypeID)
		if rt, err := e.store.GetRoomType(ctx, r.RoomTypeID); err == nil {
			name = rt.Name
			if rt.HotelName != "" {
				name = rt.HotelName + ", " + rt.Name
			}
		}
		d.Lines = append(d.Lines, line{
			Description: fmt.Sprintf("%s %s..%s %d night(s) x%d",
				name, r.CheckInDate.Format(inventory.DateLayout), r.CheckOutDate.Format(inventory.DateLayout), r.Nights(), r.RoomsBooked),
			AmountCents: r.CostCents(),
		})
	}
	for _, f := range b.Flights {
		d.Lines = append(d.Lines, line{
			Description: fmt.Sprintf("Flight %s %s-%s", f.AFSFlightID, f.Origin, f.Destination),
			AmountCents: f.PriceCents,
		})
	}
	return d
}

// notify records the notification and publishes the event.  Failures are
// logged and never surface to the caller.
func (e *Emitter) notify(ctx context.Context, b model.Booking, u model.User, inv model.Invoice) {
	log := e.log.WithFields(logrus.Fields{"booking_id": b.ID, "invoice_id": inv.ID})
	ctx = context.WithoutCancel(ctx)

	if err := e.store.CreateNotification(ctx, &model.Notification{
		UserID:  b.UserID,
		Kind:    model.NotificationInvoiceIssued,
		Message: fmt.Sprintf("Invoice %s issued for booking #%d", inv.Number, b.ID),
	}); err != nil {
		log.WithError(err).Warn("notification row not written")
	}

	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishInvoiceIssued(ctx, queue.InvoiceIssuedEvent{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		BookingID:     b.ID,
		UserID:        b.UserID,
		Email:         u.Email,
		AmountCents:   inv.AmountCents,
		Currency:      inv.Currency,
		Document:      inv.Document,
		IssuedAt:      inv.CreatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		log.WithError(err).Warn("publish invoice.issued failed")
	}
}
