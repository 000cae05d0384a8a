// Package handler exposes the booking core over HTTP.  Every handler reads
// the auth.Result stored by middleware.Authenticate and answers an
// Unauthorized result itself before touching inventory or the provider.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/flight"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/invoice"
	"github.com/iliyamo/travel-booking/internal/middleware"
	"github.com/iliyamo/travel-booking/internal/store"
)

// FlightGateway is the read side of the flight provider used by the API.
type FlightGateway interface {
	Search(ctx context.Context, origin, destination string, date time.Time) ([]flight.Offer, error)
	Verify(ctx context.Context, lastName, bookingReference string) (flight.ProviderBooking, error)
}

// Handler groups the HTTP endpoints.
type Handler struct {
	store      store.Reader
	ledger     *inventory.Ledger
	aggregator *booking.Aggregator
	committer  *booking.Committer
	invoices   *invoice.Emitter
	flights    FlightGateway
	log        logrus.FieldLogger
}

// Deps are the collaborators of a Handler.  All are required.
type Deps struct {
	Store      store.Reader
	Ledger     *inventory.Ledger
	Aggregator *booking.Aggregator
	Committer  *booking.Committer
	Invoices   *invoice.Emitter
	Flights    FlightGateway
	Log        logrus.FieldLogger
}

// New returns a Handler.  It panics on a missing dependency.
func New(d Deps) *Handler {
	if d.Store == nil || d.Ledger == nil || d.Aggregator == nil || d.Committer == nil || d.Invoices == nil || d.Flights == nil || d.Log == nil {
		panic("nil dependency passed to handler.New")
	}
	return &Handler{
		store:      d.Store,
		ledger:     d.Ledger,
		aggregator: d.Aggregator,
		committer:  d.Committer,
		invoices:   d.Invoices,
		flights:    d.Flights,
		log:        d.Log.WithField("component", "http"),
	}
}

func (h *Handler) unauthorized(c echo.Context, u auth.Unauthorized) error {
	c.Response().Header().Set(middleware.ErrorKindHeader, errs.Unauthorized.String())
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": u.Reason, "kind": errs.Unauthorized.String()})
}

// fail writes the JSON error body for err.  Internal errors are logged with
// their cause; clients only see a generic message.
func (h *Handler) fail(c echo.Context, err error) error {
	kind := errs.KindOf(err)
	body := echo.Map{"error": errs.Message(err), "kind": kind.String()}
	var e *errs.Error
	if errors.As(err, &e) && kind == errs.ProviderRejected {
		if e.ProviderStatus != 0 {
			body["providerStatus"] = e.ProviderStatus
		}
		if len(e.ProviderPayload) > 0 {
			body["providerPayload"] = providerPayload(e.ProviderPayload)
		}
	}

	log := h.log.WithFields(logrus.Fields{
		"method": c.Request().Method,
		"route":  c.Path(),
		"kind":   kind.String(),
	}).WithError(err)
	switch kind {
	case errs.Internal:
		log.Error("request failed")
	case errs.ProviderUnavailable:
		log.Warn("request failed")
	default:
		log.Debug("request rejected")
	}

	c.Response().Header().Set(middleware.ErrorKindHeader, kind.String())
	return c.JSON(kind.HTTPStatus(), body)
}

// providerPayload passes a JSON answer through as-is and anything else as
// a string.
func providerPayload(raw []byte) any {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}

// bind decodes and validates the request body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errs.E(errs.InvalidInput, "handler.bind", "invalid request body")
	}
	return c.Validate(dst)
}

func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Errorf(errs.InvalidInput, "handler.param", "invalid %s", name)
	}
	return id, nil
}
