package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/flight"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/queue"
	"github.com/iliyamo/travel-booking/internal/store"
)

// FlightProvider is the part of the flight gateway the booking core needs.
type FlightProvider interface {
	Book(ctx context.Context, traveler flight.Traveler, passportNumber string, flightIDs []string) (flight.ProviderBooking, error)
	Verify(ctx context.Context, lastName, bookingReference string) (flight.ProviderBooking, error)
}

// CombinedRequest is a checkout of flights, hotel legs or both.
type CombinedRequest struct {
	User           auth.Identity
	FlightIDs      []string
	PassportNumber string
	HotelLegs      []HotelLeg
}

// Result is the outcome of BookCombined: *Confirmed, *Rejected or
// *PartialFailure.
type Result interface {
	result()
}

// Confirmed means the booking was committed locally and, when flights were
// requested, by the provider.
type Confirmed struct {
	Booking model.Booking
}

// Rejected means nothing was booked anywhere.
type Rejected struct {
	Err error
}

// PartialFailure means the provider holds a booking that has no local
// counterpart yet.  The saga journal keeps it for the reconciler.
type PartialFailure struct {
	ProviderReference string
	SagaID            uint64
	Err               error
}

func (*Confirmed) result()      {}
func (*Rejected) result()       {}
func (*PartialFailure) result() {}

// Aggregator composes provider flight bookings and hotel reservations into
// one Booking.
type Aggregator struct {
	store     store.Store
	ledger    *inventory.Ledger
	committer *Committer
	provider  FlightProvider
	publisher Publisher
	tracer    trace.Tracer
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewAggregator wires an aggregator.  publisher may be nil.
func NewAggregator(st store.Store, ledger *inventory.Ledger, committer *Committer, provider FlightProvider, publisher Publisher, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{
		store:     st,
		ledger:    ledger,
		committer: committer,
		provider:  provider,
		publisher: publisher,
		tracer:    otel.Tracer("github.com/iliyamo/travel-booking/internal/booking"),
		log:       log.WithField("component", "aggregator"),
		now:       time.Now,
	}
}

// BookCombined books the requested flights with the provider first and then
// commits the flight legs and hotel legs locally in one transaction.
//
// A provider failure leaves no local rows.  A local failure after the
// provider succeeded yields a PartialFailure carrying the provider's
// booking reference; the saga row lets the reconciler finish or escalate
// it later.
func (a *Aggregator) BookCombined(ctx context.Context, req CombinedRequest) Result {
	ctx, span := a.tracer.Start(ctx, "booking.BookCombined")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("user.id", int64(req.User.ID)),
		attribute.Int("flights", len(req.FlightIDs)),
		attribute.Int("hotel_legs", len(req.HotelLegs)),
	)

	if err := validateCombined(req); err != nil {
		return a.reject(span, err)
	}
	if err := a.precheck(ctx, req.HotelLegs); err != nil {
		return a.reject(span, err)
	}

	if len(req.FlightIDs) == 0 {
		b, err := a.committer.Commit(ctx, CommitRequest{UserID: req.User.ID, HotelLegs: req.HotelLegs})
		if err != nil {
			return a.reject(span, err)
		}
		span.SetStatus(codes.Ok, "")
		return &Confirmed{Booking: b}
	}
	return a.bookWithFlights(ctx, span, req)
}

func (a *Aggregator) bookWithFlights(ctx context.Context, span trace.Span, req CombinedRequest) Result {
	const op = "aggregator.BookCombined"

	flightIDs, _ := json.Marshal(req.FlightIDs)
	hotelLegs, _ := json.Marshal(req.HotelLegs)
	saga := model.FlightSaga{
		CorrelationID: uuid.NewString(),
		UserID:        req.User.ID,
		LastName:      req.User.LastName,
		FlightIDs:     flightIDs,
		HotelLegs:     hotelLegs,
		Status:        model.SagaProviderPending,
	}
	if err := a.store.CreateSaga(ctx, &saga); err != nil {
		return a.reject(span, errs.Wrap(errs.Internal, op, err))
	}
	log := a.log.WithFields(logrus.Fields{"saga_id": saga.ID, "correlation_id": saga.CorrelationID, "user_id": req.User.ID})
	span.SetAttributes(attribute.String("saga.correlation_id", saga.CorrelationID))

	traveler := flight.Traveler{FirstName: req.User.FirstName, LastName: req.User.LastName, Email: req.User.Email}
	pb, err := a.provider.Book(ctx, traveler, req.PassportNumber, req.FlightIDs)
	if err != nil {
		saga.Status = model.SagaAborted
		if errs.Is(err, errs.ProviderUnavailable) {
			// The provider may or may not have booked; only Verify can tell.
			saga.Status = model.SagaProviderUnknown
		}
		a.saveSaga(ctx, log, &saga, err)
		log.WithError(err).WithField("saga_status", saga.Status).Warn("flight provider did not book")
		return a.reject(span, err)
	}

	if pb.BookingReference == "" {
		// A 2xx without a reference may still have booked seats, and
		// Verify cannot find them without one.
		err := errs.E(errs.ProviderUnavailable, op, "flight provider did not return a booking reference")
		saga.Status = model.SagaProviderUnknown
		saga.ProviderPayload = pb.Raw
		a.saveSaga(ctx, log, &saga, err)
		log.WithField("alert", "provider_missing_reference").Error("flight provider answered without a booking reference")
		return a.reject(span, err)
	}

	ref := pb.BookingReference
	saga.Status = model.SagaProviderCommitted
	saga.ProviderReference = &ref
	saga.ProviderPayload = pb.Raw
	a.saveSaga(ctx, log, &saga, nil)

	b, err := a.committer.Commit(ctx, CommitRequest{
		UserID:            req.User.ID,
		HotelLegs:         req.HotelLegs,
		FlightLegs:        flightLegs(pb, req.FlightIDs),
		ProviderReference: ref,
	})
	if err != nil {
		saga.Status = model.SagaPartialFailure
		a.saveSaga(ctx, log, &saga, err)
		log.WithError(err).WithFields(logrus.Fields{
			"alert":              "partial_failure",
			"provider_reference": ref,
		}).Error("provider booked but local commit failed")
		a.publishPartialFailure(ctx, log, saga, err)
		span.SetStatus(codes.Error, errs.PartialFailure.String())
		return &PartialFailure{
			ProviderReference: ref,
			SagaID:            saga.ID,
			Err:               err,
		}
	}

	saga.Status = model.SagaCompleted
	saga.BookingID = &b.ID
	a.saveSaga(ctx, log, &saga, nil)
	span.SetStatus(codes.Ok, "")
	return &Confirmed{Booking: b}
}

// precheck consults the ledger before any side effect so that an already
// sold-out stay never reaches the provider.  The committer checks again
// under lock.
func (a *Aggregator) precheck(ctx context.Context, legs []HotelLeg) error {
	const op = "aggregator.precheck"
	if len(legs) == 0 {
		return nil
	}
	demand := map[uint64]inventory.Demand{}
	spans := map[uint64]inventory.DateRange{}
	for _, h := range legs {
		rtID := h.RoomTypeID
		if h.RoomID != 0 {
			room, err := a.store.GetRoom(ctx, h.RoomID)
			if errors.Is(err, store.ErrNotFound) {
				return errs.Errorf(errs.NotFound, op, "room %d not found", h.RoomID)
			}
			if err != nil {
				return errs.Wrap(errs.Internal, op, err)
			}
			rtID = room.RoomTypeID
		}
		rng, err := inventory.NewDateRange(h.CheckIn, h.CheckOut)
		if err != nil {
			return errs.E(errs.InvalidInput, op, errs.Message(err))
		}
		if demand[rtID] == nil {
			demand[rtID] = inventory.Demand{}
			spans[rtID] = rng
		}
		demand[rtID].Add(rng, h.RoomsBooked)
		spans[rtID] = spans[rtID].Union(rng)
	}
	for rtID, d := range demand {
		days, err := a.ledger.Availability(ctx, rtID, spans[rtID])
		if err != nil {
			return err
		}
		if day, short := d.Shortfall(days); short {
			return errs.Errorf(errs.InsufficientInventory, op,
				"room type %d has not enough rooms on %s", rtID, day.Format(inventory.DateLayout))
		}
	}
	return nil
}

func (a *Aggregator) reject(span trace.Span, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, errs.KindOf(err).String())
	return &Rejected{Err: err}
}

func (a *Aggregator) saveSaga(ctx context.Context, log logrus.FieldLogger, saga *model.FlightSaga, cause error) {
	if cause != nil {
		msg := cause.Error()
		saga.LastError = &msg
	}
	// The journal must survive a cancelled request once the provider has
	// been called.
	if err := a.store.UpdateSaga(context.WithoutCancel(ctx), saga); err != nil {
		log.WithError(err).WithField("saga_status", saga.Status).Error("saga journal update failed")
	}
}

func (a *Aggregator) publishPartialFailure(ctx context.Context, log logrus.FieldLogger, saga model.FlightSaga, cause error) {
	if a.publisher == nil {
		return
	}
	ev := queue.PartialFailureEvent{
		SagaID:     saga.ID,
		UserID:     saga.UserID,
		LocalError: cause.Error(),
		OccurredAt: a.now().UTC().Format(time.RFC3339),
	}
	if saga.ProviderReference != nil {
		ev.ProviderReference = *saga.ProviderReference
	}
	if err := a.publisher.PublishPartialFailure(context.WithoutCancel(ctx), ev); err != nil {
		log.WithError(err).Warn("publish booking.partial_failure failed")
	}
}

func validateCombined(req CombinedRequest) error {
	const op = "aggregator.validate"
	if req.User.ID == 0 {
		return errs.E(errs.InvalidInput, op, "user is required")
	}
	if len(req.FlightIDs) == 0 && len(req.HotelLegs) == 0 {
		return errs.E(errs.InvalidInput, op, "at least one flight or hotel leg is required")
	}
	if len(req.FlightIDs) > 0 && req.PassportNumber == "" {
		return errs.E(errs.InvalidInput, op, "passportNumber is required when booking flights")
	}
	seen := map[string]bool{}
	for _, id := range req.FlightIDs {
		if id == "" {
			return errs.E(errs.InvalidInput, op, "flight ids must not be empty")
		}
		if seen[id] {
			return errs.Errorf(errs.InvalidInput, op, "flight %s requested twice", id)
		}
		seen[id] = true
	}
	_, err := validate(CommitRequest{UserID: req.User.ID, HotelLegs: req.HotelLegs, FlightLegs: placeholderLegs(req.FlightIDs)})
	return err
}

func placeholderLegs(ids []string) []FlightLeg {
	out := make([]FlightLeg, len(ids))
	for i, id := range ids {
		out[i] = FlightLeg{AFSFlightID: id}
	}
	return out
}

// flightLegs converts the provider's snapshot into legs to persist.  When
// the provider omits the flight list the requested ids are stored without
// schedule or price.
func flightLegs(pb flight.ProviderBooking, requested []string) []FlightLeg {
	if len(pb.Flights) == 0 {
		return placeholderLegs(requested)
	}
	out := make([]FlightLeg, 0, len(pb.Flights))
	for _, f := range pb.Flights {
		out = append(out, FlightLeg{
			AFSFlightID:   f.ID,
			Origin:        f.Origin,
			Destination:   f.Destination,
			DepartureTime: f.DepartureTime,
			ArrivalTime:   f.ArrivalTime,
			PriceCents:    f.PriceCents(),
		})
	}
	return out
}
