package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/store/storetest"
)

const secret = "test-secret"

func TestAuthenticate(t *testing.T) {
	st := storetest.New()
	u := st.AddUser("ana@example.com", "Ana", "Silva")
	a := auth.NewJWTAuthenticator(secret, st)
	ctx := context.Background()

	good, err := auth.SignAccessToken(secret, u.ID, time.Hour)
	require.NoError(t, err)

	res := a.Authenticate(ctx, "Bearer "+good)
	authorized, ok := res.(auth.Authorized)
	require.True(t, ok, "expected Authorized, got %#v", res)
	assert.Equal(t, auth.Identity{ID: u.ID, FirstName: "Ana", LastName: "Silva", Email: "ana@example.com"}, authorized.Identity)

	expired, err := auth.SignAccessToken(secret, u.ID, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.SignAccessToken("other-secret", u.ID, time.Hour)
	require.NoError(t, err)
	unknown, err := auth.SignAccessToken(secret, 9999, time.Hour)
	require.NoError(t, err)
	stringSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "not-a-number",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	cases := map[string]string{
		"":                        "missing authorization header",
		"Token " + good:           "invalid authorization header",
		"Bearer " + expired:       "token expired",
		"Bearer " + foreign:       "invalid token",
		"Bearer " + unknown:       "unknown user",
		"Bearer " + stringSub:     "invalid token subject",
		"Bearer not.a.jwt":        "invalid token",
	}
	for header, reason := range cases {
		res := a.Authenticate(ctx, header)
		unauth, ok := res.(auth.Unauthorized)
		if assert.True(t, ok, "header %q: expected Unauthorized, got %#v", header, res) {
			assert.Equal(t, reason, unauth.Reason, "header %q", header)
		}
	}
}
