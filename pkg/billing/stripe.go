package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/auth"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/models"
)

// AccountStore is the slice of the accounts repository billing needs.
type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*accounts.Account, error)
	SetStripeCustomerID(ctx context.Context, id int64, customerID string) error
	ActivateSubscription(ctx context.Context, id int64, expiresAt time.Time, points int, tokenHash string) error
}

// EventLog records processed webhook event IDs so redelivered events
// activate a subscription exactly once. A claim taken by MarkProcessed
// is given back with Release when handling fails, so the redelivery is
// a retry instead of a dropped duplicate.
type EventLog interface {
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// TokenMailer delivers the token password issued on payment.
type TokenMailer interface {
	SendAdminTokenMail(toEmail, toName, tokenPassword string, expiresAt time.Time) error
}

// ActivationRecorder counts completed activations for metrics.
type ActivationRecorder interface {
	RecordWebhookEvent(eventType, outcome string)
	RecordSubscriptionActivated()
}

// StripeConfig holds Stripe configuration
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	PlanPriceJPY  int64
	PlanDays      int
	PlanPoints    int
}

// Service handles Stripe billing operations. The admin plan is a single
// one-time JPY payment, not a recurring subscription, so checkout runs
// in payment mode and the webhook handler only cares about
// checkout.session.completed.
type Service struct {
	store   AccountStore
	events  EventLog
	config  *StripeConfig
	mailer  TokenMailer
	metrics ActivationRecorder
	log     logger.Logger
	now     func() time.Time
}

// NewService creates a new billing service
func NewService(store AccountStore, events EventLog, config *StripeConfig, log logger.Logger) *Service {
	stripe.Key = config.SecretKey

	return &Service{
		store:  store,
		events: events,
		config: config,
		log:    log,
		now:    time.Now,
	}
}

// SetTokenMailer sets the mailer for token password delivery.
func (s *Service) SetTokenMailer(m TokenMailer) {
	s.mailer = m
}

// SetMetrics sets the activation metrics recorder.
func (s *Service) SetMetrics(m ActivationRecorder) {
	s.metrics = m
}

// SetClock overrides the time source in tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateCheckoutSession creates a one-time payment checkout session for
// the admin plan. The account must already be approved for admin access.
func (s *Service) CreateCheckoutSession(ctx context.Context, accountID int64) (*models.CheckoutResponse, error) {
	acct, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	customerID := ""
	if acct.StripeCustomerID != nil && *acct.StripeCustomerID != "" {
		customerID = *acct.StripeCustomerID
	} else {
		params := &stripe.CustomerParams{
			Email: stripe.String(acct.Email),
			Metadata: map[string]string{
				"account_id": fmt.Sprintf("%d", accountID),
			},
		}
		cust, err := customer.New(params)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		customerID = cust.ID

		if err := s.store.SetStripeCustomerID(ctx, accountID, customerID); err != nil {
			return nil, fmt.Errorf("failed to save customer ID: %w", err)
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyJPY)),
					UnitAmount: stripe.Int64(s.config.PlanPriceJPY),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("Admin plan (%d days)", s.config.PlanDays)),
						Description: stripe.String(fmt.Sprintf("%d AI points, %d days of admin access", s.config.PlanPoints, s.config.PlanDays)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.config.SuccessURL),
		CancelURL:  stripe.String(s.config.CancelURL),
		Metadata: map[string]string{
			"account_id": fmt.Sprintf("%d", accountID),
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.log.Info("checkout session created", "account_id", accountID, "session_id", sess.ID)

	return &models.CheckoutResponse{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// HandleWebhook verifies and processes a Stripe webhook delivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}

	return s.ProcessEvent(ctx, event)
}

// ProcessEvent dispatches a verified Stripe event. Split from
// HandleWebhook so tests can feed events without a signed payload.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) error {
	s.log.Info("stripe webhook received", "event_id", event.ID, "type", event.Type)

	first, err := s.events.MarkProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !first {
		s.log.Info("duplicate webhook delivery ignored", "event_id", event.ID)
		if s.metrics != nil {
			s.metrics.RecordWebhookEvent(string(event.Type), "duplicate")
		}
		return nil
	}

	var handleErr error
	switch event.Type {
	case "checkout.session.completed":
		handleErr = s.handleCheckoutCompleted(ctx, event)
	default:
		s.log.Info("unhandled webhook event type", "type", event.Type)
	}

	if handleErr != nil {
		// Give the claim back so the next delivery of this event can
		// retry the activation. Holding it would turn a transient
		// failure into a paid-but-never-activated account.
		if relErr := s.events.Release(ctx, event.ID); relErr != nil {
			s.log.Error("failed to release webhook event claim", "event_id", event.ID, "error", relErr)
		}
	}

	if s.metrics != nil {
		outcome := "ok"
		if handleErr != nil {
			outcome = "error"
		}
		s.metrics.RecordWebhookEvent(string(event.Type), outcome)
	}
	return handleErr
}

// handleCheckoutCompleted activates the admin plan: issues a fresh token
// password, resets the points balance, and opens a new expiry window
// counted from the moment of payment.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	accountIDStr, ok := sess.Metadata["account_id"]
	if !ok {
		return fmt.Errorf("account_id not found in session metadata")
	}

	var accountID int64
	if _, err := fmt.Sscanf(accountIDStr, "%d", &accountID); err != nil {
		return fmt.Errorf("invalid account_id in metadata: %q", accountIDStr)
	}

	acct, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account %d: %w", accountID, err)
	}

	tokenPassword, err := auth.GenerateTokenPassword(0)
	if err != nil {
		return fmt.Errorf("failed to generate token password: %w", err)
	}
	tokenHash, err := auth.HashPassword(tokenPassword)
	if err != nil {
		return fmt.Errorf("failed to hash token password: %w", err)
	}

	expiresAt := s.now().UTC().Add(time.Duration(s.config.PlanDays) * 24 * time.Hour)

	if err := s.store.ActivateSubscription(ctx, accountID, expiresAt, s.config.PlanPoints, tokenHash); err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	s.log.Info("admin plan activated",
		"account_id", accountID,
		"expires_at", expiresAt,
		"points", s.config.PlanPoints)

	if s.metrics != nil {
		s.metrics.RecordSubscriptionActivated()
	}

	if s.mailer != nil {
		if err := s.mailer.SendAdminTokenMail(acct.Email, acct.Username, tokenPassword, expiresAt); err != nil {
			// The activation already happened; a mail failure must not
			// make Stripe retry and rotate the token again.
			s.log.Error("failed to send token password mail", "account_id", accountID, "error", err)
		}
	}

	return nil
}
