package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/middleware"
)

// SearchFlights handles GET /v1/flights/search?origin=&destination=&date=.
// Responses are cached in Redis by the route middleware.
func (h *Handler) SearchFlights(c echo.Context) error {
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	const op = "handler.SearchFlights"
	origin := strings.ToUpper(strings.TrimSpace(c.QueryParam("origin")))
	destination := strings.ToUpper(strings.TrimSpace(c.QueryParam("destination")))
	if origin == "" || destination == "" {
		return h.fail(c, errs.E(errs.InvalidInput, op, "origin and destination are required"))
	}
	date, err := time.Parse(inventory.DateLayout, c.QueryParam("date"))
	if err != nil {
		return h.fail(c, errs.E(errs.InvalidInput, op, "date must be YYYY-MM-DD"))
	}

	offers, err := h.flights.Search(c.Request().Context(), origin, destination, date)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"flights": offers})
}

// VerifyFlight handles POST /v1/flights/verify.  It asks the provider
// whether it knows a booking under the reference and last name.
func (h *Handler) VerifyFlight(c echo.Context) error {
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	pb, err := h.flights.Verify(c.Request().Context(), req.LastName, req.BookingReference)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"bookingReference": pb.BookingReference,
		"flights":          pb.Flights,
	})
}
