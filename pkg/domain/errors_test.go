package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientPointsError(t *testing.T) {
	err := NewInsufficientPointsError("translate", 4, 1)

	assert.True(t, IsInsufficientPoints(err))
	assert.False(t, IsRateLimitExceeded(err))
	assert.Equal(t, ErrCodeInsufficientPoints, GetErrorCode(err))

	var de *DomainError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, 4, de.Details["cost"])
	assert.Equal(t, 1, de.Details["balance"])
	assert.Contains(t, de.Message, "3 short")
}

func TestRateLimitError(t *testing.T) {
	err := NewRateLimitError("thumbnail", 5)

	assert.True(t, IsRateLimitExceeded(err))
	assert.Contains(t, err.Error(), "tomorrow")

	var de *DomainError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, 5, de.Details["daily_limit"])
}

func TestUpstreamErrorWrapping(t *testing.T) {
	cause := errors.New("model timeout")
	err := NewUpstreamError("quality_analysis", cause)

	assert.True(t, IsUpstreamFailed(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "not charged")
}

func TestWrappedDomainErrorStillMatches(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewSubscriptionExpiredError())

	assert.True(t, IsSubscriptionExpired(err))
	assert.Equal(t, ErrCodeSubscriptionExpired, GetErrorCode(err))
}

func TestGetErrorCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetErrorCode(errors.New("plain")))
}
