package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/middleware"
)

// BookHotel handles POST /v1/bookings/hotel.
func (h *Handler) BookHotel(c echo.Context) error {
	var user auth.Identity
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
		user = r.Identity
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	var req hotelLegRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	leg, err := req.leg()
	if err != nil {
		return h.fail(c, err)
	}
	return h.book(c, booking.CombinedRequest{User: user, HotelLegs: []booking.HotelLeg{leg}})
}

// BookFlights handles POST /v1/bookings/flights.
func (h *Handler) BookFlights(c echo.Context) error {
	var user auth.Identity
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
		user = r.Identity
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	var req flightBookingRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	return h.book(c, booking.CombinedRequest{User: user, FlightIDs: req.FlightIDs, PassportNumber: req.PassportNumber})
}

// BookCombined handles POST /v1/bookings: flights, hotel legs or both in
// one booking.
func (h *Handler) BookCombined(c echo.Context) error {
	var user auth.Identity
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
		user = r.Identity
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	var req combinedBookingRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	legs, err := req.legs()
	if err != nil {
		return h.fail(c, err)
	}
	return h.book(c, booking.CombinedRequest{
		User:           user,
		FlightIDs:      req.FlightIDs,
		PassportNumber: req.PassportNumber,
		HotelLegs:      legs,
	})
}

func (h *Handler) book(c echo.Context, req booking.CombinedRequest) error {
	switch res := h.aggregator.BookCombined(c.Request().Context(), req).(type) {
	case *booking.Confirmed:
		return c.JSON(http.StatusCreated, responseOf(res.Booking))
	case *booking.Rejected:
		return h.fail(c, res.Err)
	case *booking.PartialFailure:
		c.Response().Header().Set(middleware.ErrorKindHeader, errs.PartialFailure.String())
		return c.JSON(errs.PartialFailure.HTTPStatus(), echo.Map{
			"error":             "flights were booked but the booking could not be completed; it will be retried",
			"kind":              errs.PartialFailure.String(),
			"providerReference": res.ProviderReference,
			"sagaId":            res.SagaID,
		})
	default:
		return h.fail(c, errs.E(errs.Internal, "handler.book", "unexpected booking result"))
	}
}

// ListBookings handles GET /v1/bookings.
func (h *Handler) ListBookings(c echo.Context) error {
	var user auth.Identity
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
		user = r.Identity
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	bookings, err := h.store.ListBookingsByUser(c.Request().Context(), user.ID)
	if err != nil {
		return h.fail(c, errs.Wrap(errs.Internal, "handler.ListBookings", err))
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, responseOf(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// GetBooking handles GET /v1/bookings/:id.  Another user's booking is
// reported as not found.
func (h *Handler) GetBooking(c echo.Context) error {
	var user auth.Identity
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
		user = r.Identity
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	id, err := idParam(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	b, err := h.ownedBooking(c, user, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, responseOf(b))
}

// CancelBooking handles DELETE /v1/bookings/:id.
func (h *Handler) CancelBooking(c echo.Context) error {
	var user auth.Identity
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
		user = r.Identity
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	id, err := idParam(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	b, err := h.committer.Cancel(c.Request().Context(), user.ID, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, responseOf(b))
}
