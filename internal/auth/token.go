package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignAccessToken builds an HS256 JWT for a user with the given lifetime.
// Production tokens come from the identity provider; this signer exists
// for local tooling and tests and produces the same claim layout.
func SignAccessToken(secret string, userID uint64, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
