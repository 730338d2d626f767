package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/auth"
	"github.com/memolab/admingate/pkg/logger"
)

type fakeAccountStore struct {
	account *accounts.Account

	activatedID     int64
	activatedExpiry time.Time
	activatedPoints int
	activatedHash   string
	activations     int
	activateFails   int
}

func (f *fakeAccountStore) GetByID(ctx context.Context, id int64) (*accounts.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, fmt.Errorf("account %d not found", id)
	}
	return f.account, nil
}

func (f *fakeAccountStore) SetStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	f.account.StripeCustomerID = &customerID
	return nil
}

func (f *fakeAccountStore) ActivateSubscription(ctx context.Context, id int64, expiresAt time.Time, points int, tokenHash string) error {
	if f.activateFails > 0 {
		f.activateFails--
		return fmt.Errorf("connection reset")
	}
	f.activatedID = id
	f.activatedExpiry = expiresAt
	f.activatedPoints = points
	f.activatedHash = tokenHash
	f.activations++
	return nil
}

type fakeEventLog struct {
	seen map[string]bool
}

func (f *fakeEventLog) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeEventLog) Release(ctx context.Context, eventID string) error {
	delete(f.seen, eventID)
	return nil
}

type fakeTokenMailer struct {
	sent    int
	toEmail string
	token   string
	expires time.Time
}

func (f *fakeTokenMailer) SendAdminTokenMail(toEmail, toName, tokenPassword string, expiresAt time.Time) error {
	f.sent++
	f.toEmail = toEmail
	f.token = tokenPassword
	f.expires = expiresAt
	return nil
}

func checkoutCompletedEvent(t *testing.T, eventID string, accountID int64) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id": "cs_test_123",
		"metadata": map[string]string{
			"account_id": fmt.Sprintf("%d", accountID),
		},
	})
	require.NoError(t, err)
	return stripe.Event{
		ID:   eventID,
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func newBillingService(store *fakeAccountStore, events *fakeEventLog) *Service {
	return NewService(store, events, &StripeConfig{
		SecretKey:     "sk_test_x",
		WebhookSecret: "whsec_x",
		PlanPriceJPY:  1000,
		PlanDays:      10,
		PlanPoints:    100,
	}, logger.Default())
}

func TestCheckoutCompletedActivatesPlan(t *testing.T) {
	store := &fakeAccountStore{account: &accounts.Account{ID: 7, Email: "user@example.com", Username: "user"}}
	mailer := &fakeTokenMailer{}
	svc := newBillingService(store, &fakeEventLog{})
	svc.SetTokenMailer(mailer)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	err := svc.ProcessEvent(context.Background(), checkoutCompletedEvent(t, "evt_1", 7))
	require.NoError(t, err)

	assert.Equal(t, int64(7), store.activatedID)
	assert.Equal(t, 100, store.activatedPoints)
	assert.Equal(t, now.Add(10*24*time.Hour), store.activatedExpiry)
}

func TestCheckoutCompletedMailsRawToken(t *testing.T) {
	store := &fakeAccountStore{account: &accounts.Account{ID: 7, Email: "user@example.com", Username: "user"}}
	mailer := &fakeTokenMailer{}
	svc := newBillingService(store, &fakeEventLog{})
	svc.SetTokenMailer(mailer)

	err := svc.ProcessEvent(context.Background(), checkoutCompletedEvent(t, "evt_1", 7))
	require.NoError(t, err)

	assert.Equal(t, 1, mailer.sent)
	assert.Equal(t, "user@example.com", mailer.toEmail)
	assert.Len(t, mailer.token, 16)

	// Only the hash is persisted; it must verify against the mailed value.
	assert.NotEqual(t, mailer.token, store.activatedHash)
	assert.True(t, auth.CheckPassword(store.activatedHash, mailer.token))
}

func TestDuplicateWebhookDeliveryActivatesOnce(t *testing.T) {
	store := &fakeAccountStore{account: &accounts.Account{ID: 7, Email: "user@example.com", Username: "user"}}
	mailer := &fakeTokenMailer{}
	svc := newBillingService(store, &fakeEventLog{})
	svc.SetTokenMailer(mailer)

	evt := checkoutCompletedEvent(t, "evt_dup", 7)
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))

	assert.Equal(t, 1, store.activations)
	assert.Equal(t, 1, mailer.sent)
}

func TestRedeliveryAfterTransientFailureActivatesOnce(t *testing.T) {
	// A failed activation must not leave the event ID claimed, or the
	// customer pays and every redelivery dies as a "duplicate".
	store := &fakeAccountStore{
		account:       &accounts.Account{ID: 7, Email: "user@example.com", Username: "user"},
		activateFails: 1,
	}
	mailer := &fakeTokenMailer{}
	svc := newBillingService(store, &fakeEventLog{})
	svc.SetTokenMailer(mailer)

	evt := checkoutCompletedEvent(t, "evt_retry", 7)
	require.Error(t, svc.ProcessEvent(context.Background(), evt))
	assert.Zero(t, store.activations)
	assert.Zero(t, mailer.sent)

	// Stripe redelivers; this time the store is healthy.
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))
	assert.Equal(t, 1, store.activations)
	assert.Equal(t, 1, mailer.sent)

	// A further redelivery is a plain duplicate again.
	require.NoError(t, svc.ProcessEvent(context.Background(), evt))
	assert.Equal(t, 1, store.activations)
	assert.Equal(t, 1, mailer.sent)
}

func TestUnhandledEventTypeIsIgnored(t *testing.T) {
	store := &fakeAccountStore{account: &accounts.Account{ID: 7}}
	svc := newBillingService(store, &fakeEventLog{})

	err := svc.ProcessEvent(context.Background(), stripe.Event{
		ID:   "evt_other",
		Type: "invoice.paid",
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	})
	require.NoError(t, err)
	assert.Zero(t, store.activations)
}

func TestCheckoutCompletedMissingMetadataFails(t *testing.T) {
	store := &fakeAccountStore{account: &accounts.Account{ID: 7}}
	svc := newBillingService(store, &fakeEventLog{})

	raw, _ := json.Marshal(map[string]any{"id": "cs_test_123"})
	err := svc.ProcessEvent(context.Background(), stripe.Event{
		ID:   "evt_bad",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_id")
	assert.Zero(t, store.activations)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	store := &fakeAccountStore{account: &accounts.Account{ID: 7}}
	svc := newBillingService(store, &fakeEventLog{})

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")
	assert.Zero(t, store.activations)
}
