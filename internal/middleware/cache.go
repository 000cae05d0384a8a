package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/travel-booking/internal/config"
)

// storedResponse is a response kept in Redis for replay.
type storedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

func loadResponse(bs []byte) (storedResponse, bool) {
	var s storedResponse
	if err := json.Unmarshal(bs, &s); err != nil || s.Status == 0 {
		return storedResponse{}, false
	}
	return s, true
}

// writeTo replays the response and tags it with marker: value.
func (s storedResponse) writeTo(c echo.Context, marker, value string) error {
	h := c.Response().Header()
	for k, vals := range s.Header {
		if k == echo.HeaderContentLength || strings.EqualFold(k, marker) {
			continue
		}
		h[k] = append([]string(nil), vals...)
	}
	h.Set(marker, value)
	c.Response().WriteHeader(s.Status)
	_, err := c.Response().Write(s.Body)
	return err
}

// recorder tees the response to the client and keeps up to limit bytes of
// the body (no limit when limit <= 0).
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	n      int64
	limit  int64
}

func record(c echo.Context, limit int64) *recorder {
	r := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: limit}
	c.Response().Writer = r
	return r
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	keep := b
	if r.limit > 0 {
		room := r.limit - r.n
		switch {
		case room <= 0:
			keep = nil
		case int64(len(b)) > room:
			keep = b[:room]
		}
	}
	r.body.Write(keep)
	r.n += int64(len(b))
	return r.ResponseWriter.Write(b)
}

func (r *recorder) overflow() bool { return r.limit > 0 && r.n > r.limit }

func (r *recorder) response(h http.Header) storedResponse {
	return storedResponse{Status: r.status, Header: h.Clone(), Body: r.body.Bytes()}
}

// searchKey identifies a request by method, route and query.  Query
// parameters are canonicalised so their order does not matter.
func searchKey(prefix string, c echo.Context) string {
	q := c.Request().URL.Query()
	for _, vals := range q {
		sort.Strings(vals)
	}
	sum := sha1.Sum([]byte(c.Request().Method + " " + c.Path() + "?" + q.Encode()))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache caches 200 responses of the configured methods in Redis.
// It fronts flight search, whose offers come from the external provider.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := searchKey(cfg.Prefix, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if s, ok := loadResponse(bs); ok {
					return s.writeTo(c, "X-Cache", "HIT")
				}
			}

			rec := record(c, int64(cfg.MaxBodyBytes))
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow() {
				return nil
			}
			if bs, err := json.Marshal(rec.response(c.Response().Header())); err == nil {
				_ = rdb.Set(context.WithoutCancel(ctx), key, bs, ttl).Err()
			}
			return nil
		}
	}
}
