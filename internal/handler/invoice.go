package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/errs"
	"github.com/iliyamo/travel-booking/internal/invoice"
	"github.com/iliyamo/travel-booking/internal/middleware"
	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/store"
)

// IssueInvoice handles POST /v1/bookings/:id/invoice.  The first call
// creates the invoice (201); later calls return the same one (200).
func (h *Handler) IssueInvoice(c echo.Context) error {
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
	if _, err := h.ownedBooking(c, user, id); err != nil {
		return h.fail(c, err)
	}
	inv, status, err := h.invoices.EnsureInvoice(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	code := http.StatusOK
	if status == invoice.StatusCreated {
		code = http.StatusCreated
	}
	return c.JSON(code, echo.Map{
		"invoiceId":   inv.ID,
		"bookingId":   inv.BookingID,
		"number":      inv.Number,
		"amountCents": inv.AmountCents,
		"currency":    inv.Currency,
		"status":      status,
		"document":    inv.Document,
		"createdAt":   inv.CreatedAt,
	})
}

// ownedBooking loads a booking of the caller.  Bookings of other users are
// NotFound so their existence is not revealed.
func (h *Handler) ownedBooking(c echo.Context, user auth.Identity, id uint64) (model.Booking, error) {
	const op = "handler.ownedBooking"
	b, err := h.store.GetBooking(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && b.UserID != user.ID) {
		return model.Booking{}, errs.Errorf(errs.NotFound, op, "booking %d not found", id)
	}
	if err != nil {
		return model.Booking{}, errs.Wrap(errs.Internal, op, err)
	}
	return b, nil
}
