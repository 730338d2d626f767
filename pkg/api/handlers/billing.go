package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/models"
)

// CheckoutService is implemented by the billing service.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, accountID int64) (*models.CheckoutResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// BillingAccountLoader checks the applicant's state before checkout.
type BillingAccountLoader interface {
	GetByID(ctx context.Context, id int64) (*accounts.Account, error)
}

// BillingHandler handles checkout and the Stripe webhook
type BillingHandler struct {
	billing CheckoutService
	loader  BillingAccountLoader
	log     logger.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billing CheckoutService, loader BillingAccountLoader, log logger.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billing,
		loader:  loader,
		log:     log,
	}
}

// Checkout creates a payment session for the admin plan. Only approved
// accounts can pay; payment is what opens (or reopens) the window.
func (h *BillingHandler) Checkout(c echo.Context) error {
	userID, ok := c.Get("user_id").(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	acct, err := h.loader.GetByID(ctx, userID)
	if err != nil {
		return domainError(c, err)
	}
	if !acct.IsAdmin {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Admin access must be approved before payment",
		})
	}

	resp, err := h.billing.CreateCheckoutSession(ctx, userID)
	if err != nil {
		h.log.Error("failed to create checkout session", "account_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "checkout_error",
			Message: "Failed to create checkout session",
		})
	}

	return c.JSON(http.StatusOK, resp)
}

// Webhook receives Stripe event deliveries. A non-2xx response makes
// Stripe retry, so only verification and processing errors bubble up.
func (h *BillingHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_payload",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_signature",
			Message: "Stripe-Signature header is required",
		})
	}

	if err := h.billing.HandleWebhook(c.Request().Context(), payload, signature); err != nil {
		h.log.Error("webhook processing failed", "error", err)
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "webhook_error",
			Message: "Webhook processing failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{"received": "true"})
}
