// Package auth turns an inbound credential into an explicit result that
// every handler must inspect.  Token issuance lives elsewhere; this
// service only verifies.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/travel-booking/internal/model"
	"github.com/iliyamo/travel-booking/internal/store"
)

// Identity is the verified caller.
type Identity struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// IdentityOf builds an Identity from a stored user.
func IdentityOf(u model.User) Identity {
	return Identity{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// Result is either Authorized or Unauthorized.
type Result interface {
	authResult()
}

// Authorized carries the verified identity.
type Authorized struct {
	Identity Identity
}

// Unauthorized carries a client-safe reason.
type Unauthorized struct {
	Reason string
}

func (Authorized) authResult()   {}
func (Unauthorized) authResult() {}

// Authenticator verifies a raw Authorization header value.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) Result
}

// UserReader loads users by id.
type UserReader interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
}

// JWTAuthenticator accepts HS256 bearer tokens whose subject is a user id
// and resolves the user from the store.
type JWTAuthenticator struct {
	secret []byte
	users  UserReader
}

// NewJWTAuthenticator returns an authenticator using the shared secret.
func NewJWTAuthenticator(secret string, users UserReader) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), users: users}
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, header string) Result {
	if header == "" {
		return Unauthorized{Reason: "missing authorization header"}
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return Unauthorized{Reason: "invalid authorization header"}
	}

	tok, err := jwt.Parse(strings.TrimSpace(parts[1]), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Unauthorized{Reason: "token expired"}
		}
		return Unauthorized{Reason: "invalid token"}
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Unauthorized{Reason: "invalid claims"}
	}
	id, ok := subject(claims)
	if !ok {
		return Unauthorized{Reason: "invalid token subject"}
	}
	u, err := a.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Unauthorized{Reason: "unknown user"}
	}
	if err != nil {
		return Unauthorized{Reason: "user lookup failed"}
	}
	return Authorized{Identity: IdentityOf(u)}
}

// subject reads the sub claim, which issuers encode either as a JSON
// number or as a decimal string.
func subject(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case float64:
		if v < 1 || v != float64(uint64(v)) {
			return 0, false
		}
		return uint64(v), true
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}
