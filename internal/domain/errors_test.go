package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{
			name:     "not found",
			err:      NewNotFoundError("work", "doi:10.1000/x"),
			sentinel: ErrNotFound,
		},
		{
			name:     "validation",
			err:      NewValidationError("title", "must not be empty"),
			sentinel: ErrInvalidInput,
		},
		{
			name:     "rate limit",
			err:      NewRateLimitError("openalex", 2*time.Second),
			sentinel: ErrRateLimited,
		},
		{
			name:     "budget exhausted",
			err:      NewBudgetExhaustedError("appropriateness", 25),
			sentinel: ErrBudgetExhausted,
		},
		{
			name:     "mandatory check",
			err:      NewMandatoryCheckError("appropriateness", "llm", errors.New("no client")),
			sentinel: ErrMandatoryCheck,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestExternalAPIError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewExternalAPIError("crossref", 502, "bad gateway", cause)

	assert.Contains(t, err.Error(), "crossref")
	assert.Contains(t, err.Error(), "502")
	assert.ErrorIs(t, err, cause)
}

func TestMandatoryCheckError_Message(t *testing.T) {
	err := NewMandatoryCheckError("appropriateness", "llm", errors.New("no provider configured"))

	assert.Contains(t, err.Error(), `"appropriateness"`)
	assert.Contains(t, err.Error(), "llm")
	assert.Contains(t, err.Error(), "no provider configured")
}
