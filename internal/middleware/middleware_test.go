package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/config"
	"github.com/iliyamo/travel-booking/internal/logging"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type staticAuth struct{ result auth.Result }

func (s staticAuth) Authenticate(ctx context.Context, header string) auth.Result { return s.result }

func serve(e *echo.Echo, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateStoresResult(t *testing.T) {
	e := echo.New()
	e.Use(Authenticate(staticAuth{auth.Authorized{Identity: auth.Identity{ID: 7}}}))
	var got auth.Result
	e.GET("/me", func(c echo.Context) error {
		got = AuthResult(c)
		return c.String(http.StatusOK, userID(c))
	})

	rec := serve(e, http.MethodGet, "/me", nil)
	assert.Equal(t, "7", rec.Body.String())
	assert.Equal(t, auth.Authorized{Identity: auth.Identity{ID: 7}}, got)
}

func TestAuthResultWithoutMiddleware(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, ok := AuthResult(c).(auth.Unauthorized)
	assert.True(t, ok)
	assert.Equal(t, "anon", userID(c))
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, logging.Discard()))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", nil).Code)
	second := serve(e, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusNoContent, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	blocked := serve(e, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), `"kind":"rate_limited"`)
}

func TestTokenBucketFailsOpenWithoutRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl"}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, logging.Discard()))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", nil).Code)
	}
}

func TestRedisCacheHitsOnSameQuery(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	calls := 0
	e := echo.New()
	e.GET("/v1/flights/search", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"offers": calls})
	}, NewRedisCache(cfg, rdb))

	first := serve(e, http.MethodGet, "/v1/flights/search?origin=LIS&destination=BER", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve(e, http.MethodGet, "/v1/flights/search?destination=BER&origin=LIS", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	serve(e, http.MethodGet, "/v1/flights/search?origin=LIS&destination=MAD", nil)
	assert.Equal(t, 2, calls)
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache"}
	calls := 0
	e := echo.New()
	e.GET("/s", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "down"})
	}, NewRedisCache(cfg, rdb))

	serve(e, http.MethodGet, "/s", nil)
	serve(e, http.MethodGet, "/s", nil)
	assert.Equal(t, 2, calls)
}

func idemServer(t *testing.T, rdb *redis.Client, h echo.HandlerFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Use(Authenticate(staticAuth{auth.Authorized{Identity: auth.Identity{ID: 1}}}))
	e.POST("/v1/bookings", h, NewIdempotency(config.IdempotencyConfig{Enabled: true, TTL: time.Hour, Prefix: "idem"}, rdb, logging.Discard()))
	return e
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	_, rdb := newRedis(t)
	calls := 0
	e := idemServer(t, rdb, func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusCreated, echo.Map{"bookingId": calls})
	})
	hdr := map[string]string{IdempotencyHeader: "abc"}

	first := serve(e, http.MethodPost, "/v1/bookings", hdr)
	require.Equal(t, http.StatusCreated, first.Code)

	second := serve(e, http.MethodPost, "/v1/bookings", hdr)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	serve(e, http.MethodPost, "/v1/bookings", map[string]string{IdempotencyHeader: "other"})
	assert.Equal(t, 2, calls)
}

func TestIdempotencyInProgress(t *testing.T) {
	mr, rdb := newRedis(t)
	e := idemServer(t, rdb, func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	require.NoError(t, mr.Set("idem:1:POST:/v1/bookings:abc", pendingMarker))

	rec := serve(e, http.MethodPost, "/v1/bookings", map[string]string{IdempotencyHeader: "abc"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIdempotencyReleasesKeyOnInternalError(t *testing.T) {
	mr, rdb := newRedis(t)
	calls := 0
	e := idemServer(t, rdb, func(c echo.Context) error {
		calls++
		c.Response().Header().Set(ErrorKindHeader, "internal_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "kind": "internal_error"})
	})
	hdr := map[string]string{IdempotencyHeader: "abc"}

	serve(e, http.MethodPost, "/v1/bookings", hdr)
	assert.False(t, mr.Exists("idem:1:POST:/v1/bookings:abc"))
	serve(e, http.MethodPost, "/v1/bookings", hdr)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyKeepsPartialFailure(t *testing.T) {
	_, rdb := newRedis(t)
	calls := 0
	e := idemServer(t, rdb, func(c echo.Context) error {
		calls++
		c.Response().Header().Set(ErrorKindHeader, "partial_failure")
		return c.JSON(http.StatusInternalServerError, echo.Map{"kind": "partial_failure", "providerReference": "ABC123"})
	})
	hdr := map[string]string{IdempotencyHeader: "abc"}

	serve(e, http.MethodPost, "/v1/bookings", hdr)
	again := serve(e, http.MethodPost, "/v1/bookings", hdr)
	assert.Equal(t, 1, calls)
	assert.Contains(t, again.Body.String(), "ABC123")
}
