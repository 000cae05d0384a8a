package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/config"
)

// IdempotencyHeader names the client-chosen key of a booking request.
const IdempotencyHeader = "Idempotency-Key"

// ErrorKindHeader is set by handlers on error responses to the error kind.
const ErrorKindHeader = "X-Error-Kind"

const (
	pendingMarker = "pending"
	pendingTTL    = 2 * time.Minute
	maxKeyLength  = 128
)

// NewIdempotency makes POST requests carrying an Idempotency-Key safe to
// retry.  The first request claims the key with SETNX; its response is
// stored and replayed to later requests with the same key and caller.  A
// request arriving while the first is still running gets 409.  Only an
// internal error releases the key; a partial failure or an unavailable
// provider may have booked flights, so those answers are kept and replayed.
func NewIdempotency(cfg config.IdempotencyConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	log = log.WithField("component", "idempotency")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ikey := strings.TrimSpace(req.Header.Get(IdempotencyHeader))
			if req.Method != http.MethodPost || ikey == "" {
				return next(c)
			}
			if len(ikey) > maxKeyLength {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "idempotency key too long", "kind": "invalid_input"})
			}
			ctx := req.Context()
			key := strings.Join([]string{cfg.Prefix, userID(c), req.Method, c.Path(), ikey}, ":")

			claimed, err := rdb.SetNX(ctx, key, pendingMarker, pendingTTL).Result()
			if err != nil {
				log.WithError(err).Warn("redis error, idempotency skipped")
				return next(c)
			}
			if !claimed {
				bs, err := rdb.Get(ctx, key).Bytes()
				if err == nil && string(bs) != pendingMarker {
					if s, ok := loadResponse(bs); ok {
						return s.writeTo(c, "Idempotent-Replayed", "true")
					}
				}
				return c.JSON(http.StatusConflict, echo.Map{
					"error": "a request with this idempotency key is still in progress",
					"kind":  "invalid_state",
				})
			}

			rec := record(c, 0)
			herr := next(c)

			bg := context.WithoutCancel(ctx)
			if herr != nil || c.Response().Header().Get(ErrorKindHeader) == "internal_error" {
				_ = rdb.Del(bg, key).Err()
				return herr
			}
			payload, err := json.Marshal(rec.response(c.Response().Header()))
			if err == nil {
				err = rdb.Set(bg, key, payload, cfg.TTL).Err()
			}
			if err != nil {
				log.WithError(err).WithField("key", key).Warn("response not stored")
				_ = rdb.Del(bg, key).Err()
			}
			return nil
		}
	}
}
