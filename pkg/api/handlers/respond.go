package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/models"
)

// domainError maps the error taxonomy onto HTTP. Insufficient points is
// 402 so clients can tell "buy more" apart from "slow down" (429) and
// "renew" (403).
func domainError(c echo.Context, err error) error {
	var derr *domain.DomainError
	if !errors.As(err, &derr) {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   domain.ErrCodeInternal,
			Message: "An internal error occurred",
		})
	}

	status := http.StatusInternalServerError
	switch derr.Code {
	case domain.ErrCodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	case domain.ErrCodeInsufficientPoints:
		status = http.StatusPaymentRequired
	case domain.ErrCodeSubscriptionExpired:
		status = http.StatusForbidden
	case domain.ErrCodeNotAuthorized:
		status = http.StatusForbidden
	case domain.ErrCodeUpstreamFailed:
		status = http.StatusBadGateway
	case domain.ErrCodeNotFound:
		status = http.StatusNotFound
	case domain.ErrCodeValidation:
		status = http.StatusBadRequest
	case domain.ErrCodeConflict:
		status = http.StatusConflict
	}

	return c.JSON(status, models.ErrorResponse{
		Error:   derr.Code,
		Message: derr.Message,
		Details: derr.Details,
	})
}
