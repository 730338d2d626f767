package subscription

import (
	"context"
	"time"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/logger"
)

// NoticeStore persists which remaining-time bucket an account was last
// notified about, so a notice fires once per bucket across sessions.
type NoticeStore interface {
	MarkExpiryNotice(ctx context.Context, accountID int64, bucket int) (bool, error)
}

// NoticeSender delivers the expiring-soon notice to the user.
type NoticeSender interface {
	SendExpiryNotice(toEmail, toName string, remaining time.Duration) error
}

// Notifier fires one expiring-soon notice per remaining-time bucket per
// account once the window enters the warning band.
type Notifier struct {
	store  NoticeStore
	sender NoticeSender
	log    logger.Logger
}

// NewNotifier creates a new expiry notifier
func NewNotifier(store NoticeStore, sender NoticeSender, log logger.Logger) *Notifier {
	return &Notifier{store: store, sender: sender, log: log}
}

// Notify evaluates the account's window at now and sends the notice if it
// is expiring soon and this bucket has not been announced yet. Returns
// whether a notice was sent.
func (n *Notifier) Notify(ctx context.Context, acct *accounts.Account, now time.Time) (bool, error) {
	w := Evaluate(now, acct.SubscriptionExpiresAt)
	if !w.ExpiringSoon() {
		return false, nil
	}

	fresh, err := n.store.MarkExpiryNotice(ctx, acct.ID, w.NoticeBucket())
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	if err := n.sender.SendExpiryNotice(acct.Email, acct.Username, w.Remaining); err != nil {
		// The bucket is already marked; a send failure drops this
		// notice rather than spamming retries every sweep.
		n.log.Error("failed to send expiry notice", "account_id", acct.ID, "error", err)
		return false, err
	}

	n.log.Info("expiry notice sent", "account_id", acct.ID, "remaining_minutes", w.NoticeBucket())
	return true, nil
}
