package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/models"
	"github.com/memolab/admingate/pkg/subscription"
)

// AccountLoader is the account lookup the admin gate needs.
type AccountLoader interface {
	GetByID(ctx context.Context, id int64) (*accounts.Account, error)
}

// RequireAdmin gates admin routes. The operator account always passes.
// Everyone else must present an admin-scoped JWT (issued only after the
// token password was verified), hold admin status, AND have a usable
// subscription window; evaluating the window on every request is what
// closes access the moment the window expires, with no sweep lag.
func RequireAdmin(loader AccountLoader, operatorEmail string) echo.MiddlewareFunc {
	return RequireAdminWithClock(loader, operatorEmail, time.Now)
}

// RequireAdminWithClock is RequireAdmin with an injectable time source.
func RequireAdminWithClock(loader AccountLoader, operatorEmail string, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get("user_id").(int64)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   domain.ErrCodeNotAuthorized,
					Message: "Authentication required",
				})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			acct, err := loader.GetByID(ctx, userID)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   domain.ErrCodeNotAuthorized,
					Message: "Account not found",
				})
			}

			if acct.IsSuperAdmin(operatorEmail) {
				c.Set("account", acct)
				return next(c)
			}

			// A password-only login token never reaches the admin area;
			// the is_admin claim is set only after the token password
			// was exchanged at admin-login.
			if scoped, ok := c.Get("is_admin").(bool); !ok || !scoped {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   domain.ErrCodeNotAuthorized,
					Message: "Admin login with the token password is required",
				})
			}

			if !acct.IsAdmin {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   domain.ErrCodeNotAuthorized,
					Message: "Admin access required",
				})
			}

			window := subscription.Evaluate(now(), acct.SubscriptionExpiresAt)
			if !window.Usable() {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   domain.ErrCodeSubscriptionExpired,
					Message: "Your admin subscription has expired. A new payment is required.",
				})
			}

			c.Set("account", acct)
			return next(c)
		}
	}
}
