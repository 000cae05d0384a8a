package middleware

// identity.go resolves the caller once per request.  The result is stored
// in the echo context and read back by handlers, which decide for
// themselves how to answer an Unauthorized result.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/travel-booking/internal/auth"
)

const authResultKey = "auth_result"

// Authenticate runs the authenticator against the Authorization header and
// stores the auth.Result.  It never rejects a request by itself.
func Authenticate(a auth.Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.Set(authResultKey, a.Authenticate(req.Context(), req.Header.Get("Authorization")))
			return next(c)
		}
	}
}

// AuthResult returns the stored result, or Unauthorized when Authenticate
// did not run.
func AuthResult(c echo.Context) auth.Result {
	if r, ok := c.Get(authResultKey).(auth.Result); ok && r != nil {
		return r
	}
	return auth.Unauthorized{Reason: "missing authorization header"}
}

// userID returns the authenticated user's id for keying, or "anon".
func userID(c echo.Context) string {
	if a, ok := c.Get(authResultKey).(auth.Authorized); ok {
		return strconv.FormatUint(a.Identity.ID, 10)
	}
	return "anon"
}
