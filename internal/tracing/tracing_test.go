package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddlewareStartsSpan(t *testing.T) {
	tp, err := NewTracerProvider("travel-booking-test", "test", "")
	require.NoError(t, err)
	defer func() { _ = Shutdown(context.Background(), tp) }()

	e := echo.New()
	e.Use(Middleware("travel-booking-test"))
	var sc trace.SpanContext
	e.GET("/health", func(c echo.Context) error {
		sc = trace.SpanContextFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsSampled())
}

func TestMiddlewareContinuesPropagatedTrace(t *testing.T) {
	tp, err := NewTracerProvider("travel-booking-test", "test", "")
	require.NoError(t, err)
	defer func() { _ = Shutdown(context.Background(), tp) }()

	e := echo.New()
	e.Use(Middleware("travel-booking-test"))
	var sc trace.SpanContext
	e.GET("/x", func(c echo.Context) error {
		sc = trace.SpanContextFromContext(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	e.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
}
