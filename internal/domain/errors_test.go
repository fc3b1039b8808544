package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageOf(t *testing.T) {
	embedErr := &ProviderError{Stage: StageEmbed, Provider: "openai", Err: ErrUnavailable}
	completeErr := &ProviderError{Stage: StageComplete, Provider: "openai", StatusCode: 429, Err: ErrQuotaExceeded}
	retrieveErr := &RetrievalError{Index: "FerreroKPI", Err: errors.New("connection refused")}

	assert.Equal(t, StageEmbed, StageOf(embedErr))
	assert.Equal(t, StageComplete, StageOf(fmt.Errorf("answer: %w", completeErr)))
	assert.Equal(t, StageRetrieve, StageOf(retrieveErr))
	assert.Equal(t, "", StageOf(errors.New("plain")))
	assert.Equal(t, "", StageOf(nil))
}

func TestProviderErrorUnwrapsKind(t *testing.T) {
	err := &ProviderError{Stage: StageComplete, Provider: "openai", StatusCode: 401, Err: StatusKind(401)}
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "returned 401")
}

func TestStatusKind(t *testing.T) {
	cases := map[int]error{
		401: ErrUnauthorized,
		403: ErrUnauthorized,
		429: ErrQuotaExceeded,
		400: ErrBadRequest,
		404: ErrBadRequest,
		408: ErrUnavailable,
		500: ErrUnavailable,
		503: ErrUnavailable,
	}
	for code, want := range cases {
		assert.ErrorIs(t, StatusKind(code), want, "status %d", code)
	}
}
