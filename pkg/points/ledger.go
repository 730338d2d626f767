package points

import (
	"context"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/logger"
)

// DefaultLowBalanceThreshold triggers a warning when the balance lands at
// or below this value after a debit.
const DefaultLowBalanceThreshold = 5

// Store is the persistence surface the ledger needs. Implemented by
// accounts.Repository.
type Store interface {
	Balance(ctx context.Context, accountID int64) (int, error)
	Debit(ctx context.Context, accountID int64, cost int) (int, error)
	MarkLowBalanceWarn(ctx context.Context, accountID int64, balance int) (bool, error)
	ClearLowBalanceWarn(ctx context.Context, accountID int64) error
}

// WarnSink receives low-balance warnings. Implementations send the actual
// user-facing message; the ledger only decides when one is due.
type WarnSink interface {
	SendLowBalanceWarning(toEmail, toName string, balance int) error
}

// Ledger tracks the consumable AI point budget per account. Checking is
// side-effect-free so callers can check, run the metered work, and debit
// only after it succeeds. The configured operator account is exempt from
// everything.
type Ledger struct {
	store         Store
	warnSink      WarnSink
	operatorEmail string
	warnThreshold int
	log           logger.Logger
}

// NewLedger creates a points ledger. warnSink may be nil to disable
// low-balance warnings.
func NewLedger(store Store, warnSink WarnSink, operatorEmail string, warnThreshold int, log logger.Logger) *Ledger {
	if warnThreshold <= 0 {
		warnThreshold = DefaultLowBalanceThreshold
	}
	return &Ledger{
		store:         store,
		warnSink:      warnSink,
		operatorEmail: operatorEmail,
		warnThreshold: warnThreshold,
		log:           log,
	}
}

// Check reports whether the account can afford cost, along with the
// current balance. Performs no mutation. The operator always passes.
func (l *Ledger) Check(ctx context.Context, acct *accounts.Account, cost int) (bool, int, error) {
	if acct.IsSuperAdmin(l.operatorEmail) {
		return true, 0, nil
	}

	balance, err := l.store.Balance(ctx, acct.ID)
	if err != nil {
		return false, 0, err
	}
	return balance >= cost, balance, nil
}

// Debit consumes cost points after a successful metered action. The
// balance clamps at zero. A no-op for the operator. Returns the new
// balance.
func (l *Ledger) Debit(ctx context.Context, acct *accounts.Account, cost int) (int, error) {
	if acct.IsSuperAdmin(l.operatorEmail) {
		return 0, nil
	}

	balance, err := l.store.Debit(ctx, acct.ID, cost)
	if err != nil {
		return 0, err
	}

	l.maybeWarnLow(ctx, acct, balance)
	return balance, nil
}

// maybeWarnLow fires the low-balance warning once per distinct balance
// value, and resets the dedup state once the balance recovers.
func (l *Ledger) maybeWarnLow(ctx context.Context, acct *accounts.Account, balance int) {
	if balance > l.warnThreshold {
		if err := l.store.ClearLowBalanceWarn(ctx, acct.ID); err != nil {
			l.log.Error("failed to clear low balance warning state", "account_id", acct.ID, "error", err)
		}
		return
	}

	fresh, err := l.store.MarkLowBalanceWarn(ctx, acct.ID, balance)
	if err != nil {
		l.log.Error("failed to mark low balance warning", "account_id", acct.ID, "error", err)
		return
	}
	if !fresh || l.warnSink == nil {
		return
	}

	if err := l.warnSink.SendLowBalanceWarning(acct.Email, acct.Username, balance); err != nil {
		l.log.Error("failed to send low balance warning", "account_id", acct.ID, "error", err)
		return
	}
	l.log.Info("low balance warning sent", "account_id", acct.ID, "balance", balance)
}
