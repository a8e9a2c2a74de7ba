package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeValidation, http.StatusBadRequest},
		{CodeParse, http.StatusBadRequest},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeUpstreamTransient, http.StatusBadGateway},
		{CodeUpstreamPermanent, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{CodeStorage, http.StatusInternalServerError},
		{CodeIndexStale, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
		})
	}
}

func TestCodeRetryable(t *testing.T) {
	retryable := []Code{CodeUpstreamTransient, CodeRateLimited, CodeStorage, CodeTimeout}
	for _, code := range retryable {
		assert.True(t, code.Retryable(), "%s", code)
	}

	permanent := []Code{CodeNotFound, CodeValidation, CodeParse, CodeUpstreamPermanent, CodeInternal, CodeIndexStale}
	for _, code := range permanent {
		assert.False(t, code.Retryable(), "%s", code)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NotFound("game 42 not found")
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrValidation))
}

func TestErrorIsMatchesThroughWrapping(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(cause, CodeUpstreamTransient, "catalog request failed")

	assert.True(t, Is(err, ErrUpstreamTransient))
	assert.True(t, Is(err, cause))
	assert.Equal(t, cause, Unwrap(err))
}

func TestErrorAsExtractsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", RateLimited("quota exhausted"))

	var domainErr *Error
	require.True(t, As(wrapped, &domainErr))
	assert.Equal(t, CodeRateLimited, domainErr.Code)
	assert.True(t, domainErr.Retryable())
}

func TestErrorMessage(t *testing.T) {
	plain := IndexStale("snapshot below minimum")
	assert.Equal(t, "snapshot below minimum", plain.Error())

	withCause := plain.WithCause(fmt.Errorf("boom"))
	assert.Equal(t, "snapshot below minimum: boom", withCause.Error())
}

func TestWithCauseDoesNotMutateOriginal(t *testing.T) {
	derived := ErrAlreadyExists.WithCause(fmt.Errorf("key entry:steam/1"))

	assert.Nil(t, ErrAlreadyExists.Unwrap())
	assert.NotNil(t, derived.Unwrap())
	assert.True(t, Is(derived, ErrAlreadyExists))
}

func TestWithDetails(t *testing.T) {
	err := Validation("validation failed").WithDetails(map[string]string{"title": "required"})

	assert.Equal(t, CodeValidation, err.Code)
	require.NotNil(t, err.Details)
	assert.Equal(t, "required", err.Details.(map[string]string)["title"])
}
