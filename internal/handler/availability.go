package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/middleware"
)

// Availability handles GET /v1/room-types/:id/availability.  It reports the
// free rooms of every night in [checkInDate, checkOutDate) and their
// minimum, which is how many rooms a single booking could take.
func (h *Handler) Availability(c echo.Context) error {
	switch r := middleware.AuthResult(c).(type) {
	case auth.Authorized:
	case auth.Unauthorized:
		return h.unauthorized(c, r)
	default:
		return h.unauthorized(c, auth.Unauthorized{Reason: "invalid token"})
	}

	id, err := idParam(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	rng, err := inventory.ParseDateRange(c.QueryParam("checkInDate"), c.QueryParam("checkOutDate"))
	if err != nil {
		return h.fail(c, err)
	}
	days, err := h.ledger.Availability(c.Request().Context(), id, rng)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"roomTypeId":   id,
		"checkInDate":  rng.CheckIn.Format(inventory.DateLayout),
		"checkOutDate": rng.CheckOut.Format(inventory.DateLayout),
		"nights":       rng.Nights(),
		"minAvailable": inventory.Min(days),
		"days":         days,
	})
}
