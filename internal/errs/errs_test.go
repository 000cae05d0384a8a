package errs

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksWrapChain(t *testing.T) {
	inner := E(InsufficientInventory, "committer.Commit", "no rooms left")
	wrapped := fmt.Errorf("handler: %w", inner)

	assert.Equal(t, InsufficientInventory, KindOf(wrapped))
	assert.True(t, Is(wrapped, InsufficientInventory))
	assert.False(t, Is(nil, InsufficientInventory))
	assert.Equal(t, Internal, KindOf(sql.ErrNoRows))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidInput:          http.StatusBadRequest,
		InvalidRange:          http.StatusBadRequest,
		NotFound:              http.StatusNotFound,
		InsufficientInventory: http.StatusConflict,
		InvalidState:          http.StatusConflict,
		ProviderRejected:      http.StatusUnprocessableEntity,
		ProviderUnavailable:   http.StatusServiceUnavailable,
		PartialFailure:        http.StatusInternalServerError,
		Internal:              http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), kind.String())
	}
}

func TestMessageHidesInternalDetails(t *testing.T) {
	assert.Equal(t, "internal error", Message(Wrap(Internal, "repo", sql.ErrConnDone)))
	assert.Equal(t, "internal error", Message(sql.ErrConnDone))
	assert.Equal(t, "room type not found", Message(E(NotFound, "ledger", "room type not found")))
	assert.Equal(t, "invalid_range", Message(&Error{Kind: InvalidRange}))
}

func TestErrorString(t *testing.T) {
	err := Wrap(ProviderUnavailable, "flight.Book", fmt.Errorf("timeout"))
	assert.Equal(t, "flight.Book: provider_unavailable: timeout", err.Error())
}
