package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/actions"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/gating"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/models"
)

// ActionsHandler runs metered AI actions through the gating policy
type ActionsHandler struct {
	policy    *gating.Policy
	validator *validator.Validate
	log       logger.Logger
}

// NewActionsHandler creates a new actions handler
func NewActionsHandler(policy *gating.Policy, log logger.Logger) *ActionsHandler {
	return &ActionsHandler{
		policy:    policy,
		validator: validator.New(),
		log:       log,
	}
}

// Execute runs one metered action. All quota, points, and charging
// decisions happen inside the policy; this handler only shapes HTTP.
func (h *ActionsHandler) Execute(c echo.Context) error {
	acct, ok := c.Get("account").(*accounts.Account)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Authentication required",
		})
	}

	var req models.ActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   domain.ErrCodeValidation,
			Message: err.Error(),
		})
	}

	outcome, err := h.policy.Execute(c.Request().Context(), acct, c.Param("key"), actions.Input{
		Title:   req.Title,
		Content: req.Content,
		Target:  req.Target,
	})
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(http.StatusOK, models.ActionResponse{
		Action:         outcome.Action,
		Result:         outcome.Result,
		PointsBalance:  outcome.Balance,
		QuotaRemaining: outcome.QuotaRemaining,
	})
}
