package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfFollowsWrapChain(t *testing.T) {
	sentinel := New(InsufficientFunds, "insufficient funds")
	wrapped := fmt.Errorf("transfer: %w", sentinel)

	assert.Equal(t, InsufficientFunds, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, sentinel))
	assert.True(t, IsKind(wrapped, InsufficientFunds))
}

func TestKindOfUnclassifiedIsInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, IsKind(nil, Internal))
}

func TestErrorMessageIncludesFieldAndCause(t *testing.T) {
	err := Invalid("amount", "must be positive")
	assert.Equal(t, "amount: must be positive", err.Error())

	cause := errors.New("connection reset")
	wrapped := Wrap(Internal, "load wallet", cause)
	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "load wallet: connection reset", wrapped.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Validation:           http.StatusBadRequest,
		NotFound:             http.StatusNotFound,
		InsufficientFunds:    http.StatusUnprocessableEntity,
		VerificationRequired: http.StatusForbidden,
		Conflict:             http.StatusConflict,
		InvalidState:         http.StatusConflict,
		Expired:              http.StatusGone,
		Internal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind %s", kind)
	}
}
