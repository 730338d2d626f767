package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/actions"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/gating"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/models"
	"github.com/memolab/admingate/pkg/subscription"
)

// AdminStore is the slice of the accounts repository the admin endpoints
// need.
type AdminStore interface {
	GetByID(ctx context.Context, id int64) (*accounts.Account, error)
	List(ctx context.Context) ([]accounts.Account, error)
	SetApplied(ctx context.Context, id int64) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error
	Balance(ctx context.Context, id int64) (int, error)
}

// QuotaReader reports remaining daily uses per action.
type QuotaReader interface {
	Remaining(ctx context.Context, accountID int64, actionKey string, limit int, loc *time.Location, now time.Time) (int, error)
}

// AdminMailer sends the application and approval notification mails.
type AdminMailer interface {
	SendAdminApplication(operatorEmail, applicantEmail, applicantName string, applicantID int64) error
	SendApprovalNotice(toEmail, toName string) error
}

// ReportWriter renders the operator's accounts report.
type ReportWriter interface {
	WriteAccountsReport(w io.Writer, list []accounts.Account) error
}

// AdminHandler serves the admin dashboard and the apply/approve flow
type AdminHandler struct {
	store         AdminStore
	quotas        QuotaReader
	policy        *gating.Policy
	mailer        AdminMailer
	exporter      ReportWriter
	operatorEmail string
	log           logger.Logger
	now           func() time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store AdminStore, quotas QuotaReader, policy *gating.Policy, mailer AdminMailer, operatorEmail string, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		store:         store,
		quotas:        quotas,
		policy:        policy,
		mailer:        mailer,
		operatorEmail: operatorEmail,
		log:           log,
		now:           time.Now,
	}
}

// SetClock overrides the time source in tests.
func (h *AdminHandler) SetClock(now func() time.Time) {
	h.now = now
}

// SetExporter wires the accounts report writer.
func (h *AdminHandler) SetExporter(e ReportWriter) {
	h.exporter = e
}

// Status reports the full gating state for the dashboard: window status,
// points balance, and per-action remaining quota.
func (h *AdminHandler) Status(c echo.Context) error {
	acct, ok := c.Get("account").(*accounts.Account)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	now := h.now()
	window := subscription.Evaluate(now, acct.SubscriptionExpiresAt)
	operator := acct.IsSuperAdmin(h.operatorEmail)

	resp := models.AdminStatusResponse{
		SubscriptionStatus: string(window.Status),
		RemainingSeconds:   int64(window.Remaining / time.Second),
		ExpiringSoon:       window.ExpiringSoon(),
		PointsBalance:      acct.PointsBalance,
	}
	if window.Status != subscription.StatusNone {
		resp.ExpiresAt = window.ExpiresAt.Format(time.RFC3339)
	}

	loc := acct.Location()
	for _, action := range actions.All() {
		limit := h.policy.DailyLimit(action)
		quota := models.ActionQuota{
			Action:     action.Key,
			Cost:       action.Cost,
			DailyLimit: limit,
			Remaining:  limit,
		}
		if !operator {
			remaining, err := h.quotas.Remaining(ctx, acct.ID, action.Key, limit, loc, now)
			if err != nil {
				h.log.Error("failed to read quota", "account_id", acct.ID, "action", action.Key, "error", err)
				return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
					Error: domain.ErrCodeInternal,
				})
			}
			quota.Remaining = remaining
		}
		resp.Quotas = append(resp.Quotas, quota)
	}

	return c.JSON(http.StatusOK, resp)
}

// Apply records an admin application and notifies the operator. Any
// authenticated account may apply; approval stays manual.
func (h *AdminHandler) Apply(c echo.Context) error {
	userID, ok := c.Get("user_id").(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	acct, err := h.store.GetByID(ctx, userID)
	if err != nil {
		return domainError(c, err)
	}

	if acct.IsAdmin {
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   domain.ErrCodeConflict,
			Message: "This account already has admin access",
		})
	}
	if acct.IsApplied {
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   domain.ErrCodeConflict,
			Message: "An application is already pending",
		})
	}

	if err := h.store.SetApplied(ctx, userID); err != nil {
		return domainError(c, err)
	}

	if h.mailer != nil && h.operatorEmail != "" {
		if err := h.mailer.SendAdminApplication(h.operatorEmail, acct.Email, acct.Username, acct.ID); err != nil {
			h.log.Error("failed to notify operator of application", "account_id", acct.ID, "error", err)
		}
	}

	h.log.Info("admin application received", "account_id", acct.ID, "email", acct.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"status": "applied",
	})
}

// Approve grants admin status to an applicant. Operator only. The
// applicant still has to pay before any admin capability works.
func (h *AdminHandler) Approve(c echo.Context) error {
	acct, ok := c.Get("account").(*accounts.Account)
	if !ok || !acct.IsSuperAdmin(h.operatorEmail) {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Only the operator can approve applications",
		})
	}

	applicantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   domain.ErrCodeValidation,
			Message: "Invalid account ID",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	applicant, err := h.store.GetByID(ctx, applicantID)
	if err != nil {
		return domainError(c, err)
	}

	if !applicant.IsApplied {
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   domain.ErrCodeConflict,
			Message: "This account has not applied for admin access",
		})
	}

	if err := h.store.SetAdmin(ctx, applicantID, true); err != nil {
		return domainError(c, err)
	}

	if h.mailer != nil {
		if err := h.mailer.SendApprovalNotice(applicant.Email, applicant.Username); err != nil {
			h.log.Error("failed to send approval notice", "account_id", applicantID, "error", err)
		}
	}

	h.log.Info("admin application approved", "account_id", applicantID, "by", acct.Email)

	return c.JSON(http.StatusOK, map[string]string{
		"status": "approved",
	})
}

// ListAccounts returns all accounts for the operator panel.
func (h *AdminHandler) ListAccounts(c echo.Context) error {
	acct, ok := c.Get("account").(*accounts.Account)
	if !ok || !acct.IsSuperAdmin(h.operatorEmail) {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Only the operator can list accounts",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.store.List(ctx)
	if err != nil {
		return domainError(c, err)
	}

	return c.JSON(http.StatusOK, list)
}

// ReportAccounts streams the accounts workbook. Operator only.
func (h *AdminHandler) ReportAccounts(c echo.Context) error {
	acct, ok := c.Get("account").(*accounts.Account)
	if !ok || !acct.IsSuperAdmin(h.operatorEmail) {
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   domain.ErrCodeNotAuthorized,
			Message: "Only the operator can export reports",
		})
	}
	if h.exporter == nil {
		return c.JSON(http.StatusNotImplemented, models.ErrorResponse{
			Error:   domain.ErrCodeInternal,
			Message: "Report export is not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	list, err := h.store.List(ctx)
	if err != nil {
		return domainError(c, err)
	}

	filename := "accounts-" + h.now().UTC().Format("20060102") + ".xlsx"
	c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)

	return h.exporter.WriteAccountsReport(c.Response(), list)
}
