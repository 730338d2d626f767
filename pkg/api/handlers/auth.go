package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memolab/admingate/config"
	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/auth"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/models"
	"github.com/memolab/admingate/pkg/subscription"
)

// AuthStore is the slice of the accounts repository auth needs.
type AuthStore interface {
	Create(ctx context.Context, email, username, passwordHash, timezone string) (*accounts.Account, error)
	GetByEmail(ctx context.Context, email string) (*accounts.Account, error)
	GetByID(ctx context.Context, id int64) (*accounts.Account, error)
}

// AuthHandler handles registration and login endpoints
type AuthHandler struct {
	store     AuthStore
	config    *config.Config
	validator *validator.Validate
	log       logger.Logger
	now       func() time.Time
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store AuthStore, cfg *config.Config, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		store:     store,
		config:    cfg,
		validator: validator.New(),
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source in tests.
func (h *AuthHandler) SetClock(now func() time.Time) {
	h.now = now
}

// Register creates a new account with a free (non-admin) profile.
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if existing, err := h.store.GetByEmail(ctx, req.Email); err == nil && existing != nil {
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "account_exists",
			Message: "An account with this email already exists",
		})
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "password_hashing_error",
		})
	}

	acct, err := h.store.Create(ctx, req.Email, req.Username, passwordHash, h.config.DefaultTimezone)
	if err != nil {
		// Two concurrent registrations can both pass the lookup above;
		// the loser hits the unique constraint and lands here.
		if domain.IsConflict(err) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "account_exists",
				Message: "An account with this email already exists",
			})
		}
		h.log.Error("failed to create account", "email", req.Email, "error", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "database_error",
		})
	}

	h.log.Info("account registered", "account_id", acct.ID, "email", acct.Email)

	return h.issueToken(c, acct, false)
}

// Login authenticates with the regular account password. The resulting
// token never carries admin scope; that requires AdminLogin.
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	acct, err := h.store.GetByEmail(ctx, req.Email)
	if err != nil || !auth.CheckPassword(acct.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_credentials",
			Message: "Invalid email or password",
		})
	}

	return h.issueToken(c, acct, false)
}

// AdminLogin exchanges the token password mailed on payment for an
// admin-scoped JWT. The operator account skips the token password and
// the window check entirely.
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	userID, ok := c.Get("user_id").(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "missing_token",
			Message: "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	acct, err := h.store.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_credentials",
			Message: "Account not found",
		})
	}

	if acct.IsSuperAdmin(h.config.OperatorEmail) {
		return h.issueToken(c, acct, true)
	}

	var req models.AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}

	if !acct.IsAdmin || acct.AdminTokenHash == nil || *acct.AdminTokenHash == "" {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Admin access has not been granted for this account",
		})
	}

	if !auth.CheckPassword(*acct.AdminTokenHash, req.TokenPassword) {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_credentials",
			Message: "Invalid token password",
		})
	}

	window := subscription.Evaluate(h.now(), acct.SubscriptionExpiresAt)
	if !window.Usable() {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   domain.ErrCodeSubscriptionExpired,
			Message: "Your admin subscription has expired. A new payment is required.",
		})
	}

	return h.issueToken(c, acct, true)
}

func (h *AuthHandler) issueToken(c echo.Context, acct *accounts.Account, adminScope bool) error {
	token, err := auth.GenerateJWT(acct.ID, acct.Email, adminScope, h.config.JWTSecret, h.config.JWTExpirationHours)
	if err != nil {
		h.log.Error("failed to sign JWT", "account_id", acct.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "token_generation_error",
		})
	}

	resp := models.AuthResponse{Token: token}
	resp.User.ID = acct.ID
	resp.User.Email = acct.Email
	resp.User.Username = acct.Username
	resp.User.IsAdmin = adminScope

	return c.JSON(http.StatusOK, resp)
}
