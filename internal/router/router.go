package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/handler"
	"github.com/iliyamo/travel-booking/internal/tracing"
)

// Middlewares are the request filters wired around the API routes.  A nil
// entry is skipped.
type Middlewares struct {
	Authenticate echo.MiddlewareFunc // stores the auth.Result for handlers
	RateLimit    echo.MiddlewareFunc // Redis token bucket on /v1
	SearchCache  echo.MiddlewareFunc // Redis response cache on flight search
	Idempotency  echo.MiddlewareFunc // Idempotency-Key replay on booking POSTs
}

// New builds the echo instance with the shared middleware chain and every
// route registered.
func New(h *handler.Handler, mw Middlewares, serviceName string, log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(tracing.Middleware(serviceName))
	e.Use(requestLogger(log))

	RegisterRoutes(e)
	RegisterAPI(e, h, mw)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the /v1 endpoints.  Authentication runs for the
// whole group; each handler decides how to answer an unauthorized caller.
func RegisterAPI(e *echo.Echo, h *handler.Handler, mw Middlewares) {
	g := e.Group("/v1", nonNil(mw.Authenticate, mw.RateLimit)...)

	g.GET("/room-types/:id/availability", h.Availability)

	g.GET("/flights/search", h.SearchFlights, nonNil(mw.SearchCache)...)
	g.POST("/flights/verify", h.VerifyFlight)

	idem := nonNil(mw.Idempotency)
	g.POST("/bookings/hotel", h.BookHotel, idem...)
	g.POST("/bookings/flights", h.BookFlights, idem...)
	g.POST("/bookings", h.BookCombined, idem...)
	g.GET("/bookings", h.ListBookings)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking)
	g.POST("/bookings/:id/invoice", h.IssueInvoice)
}

func nonNil(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
			})
			switch {
			case v.Error != nil || v.Status >= http.StatusInternalServerError:
				entry.WithError(v.Error).Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		},
	})
}
