package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message.
// Details carries structured fields (costs, balances, remaining quota) so
// callers can render specific, user-facing rejections.
type DomainError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInsufficientPoints  = "INSUFFICIENT_POINTS"
	ErrCodeSubscriptionExpired = "SUBSCRIPTION_EXPIRED"
	ErrCodeNotAuthorized       = "NOT_AUTHORIZED"
	ErrCodeUpstreamFailed      = "UPSTREAM_ACTION_FAILED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Error constructors

// NewRateLimitError creates a rejection for an exhausted daily action cap.
// The user is not charged; they can try again tomorrow.
func NewRateLimitError(action string, limit int) error {
	return &DomainError{
		Code:    ErrCodeRateLimitExceeded,
		Message: fmt.Sprintf("Daily limit of %d reached for %s. Try again tomorrow.", limit, action),
		Details: map[string]any{
			"action":      action,
			"daily_limit": limit,
			"remaining":   0,
		},
	}
}

// NewInsufficientPointsError creates a rejection naming the shortfall.
func NewInsufficientPointsError(action string, cost, balance int) error {
	return &DomainError{
		Code:    ErrCodeInsufficientPoints,
		Message: fmt.Sprintf("%s costs %d points but only %d remain (%d short).", action, cost, balance, cost-balance),
		Details: map[string]any{
			"action":  action,
			"cost":    cost,
			"balance": balance,
		},
	}
}

// NewSubscriptionExpiredError creates an error directing the user to re-subscribe.
func NewSubscriptionExpiredError() error {
	return &DomainError{
		Code:    ErrCodeSubscriptionExpired,
		Message: "Admin subscription has expired. Complete a new payment to continue.",
	}
}

// NewNotAuthorizedError creates an authorization error
func NewNotAuthorizedError(msg string) error {
	if msg == "" {
		msg = "Authentication required"
	}
	return &DomainError{
		Code:    ErrCodeNotAuthorized,
		Message: msg,
	}
}

// NewUpstreamError wraps a failure of the gated action itself. No points
// were debited; the message says so explicitly.
func NewUpstreamError(action string, err error) error {
	return &DomainError{
		Code:    ErrCodeUpstreamFailed,
		Message: fmt.Sprintf("%s failed before completion. You were not charged.", action),
		Details: map[string]any{"action": action},
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// Helper functions to check error types

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsRateLimitExceeded checks if the error is a daily cap rejection
func IsRateLimitExceeded(err error) bool {
	return hasCode(err, ErrCodeRateLimitExceeded)
}

// IsInsufficientPoints checks if the error is a points rejection
func IsInsufficientPoints(err error) bool {
	return hasCode(err, ErrCodeInsufficientPoints)
}

// IsSubscriptionExpired checks if the error is a subscription expiry rejection
func IsSubscriptionExpired(err error) bool {
	return hasCode(err, ErrCodeSubscriptionExpired)
}

// IsNotAuthorized checks if the error is an authorization error
func IsNotAuthorized(err error) bool {
	return hasCode(err, ErrCodeNotAuthorized)
}

// IsUpstreamFailed checks if the error is a wrapped action failure
func IsUpstreamFailed(err error) bool {
	return hasCode(err, ErrCodeUpstreamFailed)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}
