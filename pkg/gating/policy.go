package gating

import (
	"context"
	"time"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/actions"
	"github.com/memolab/admingate/pkg/domain"
	"github.com/memolab/admingate/pkg/logger"
)

// Ledger is the points surface the policy consults. Implemented by
// points.Ledger.
type Ledger interface {
	Check(ctx context.Context, acct *accounts.Account, cost int) (bool, int, error)
	Debit(ctx context.Context, acct *accounts.Account, cost int) (int, error)
}

// Limiter is the daily cap surface. Implemented by ratelimit.DailyLimiter.
type Limiter interface {
	TryConsume(ctx context.Context, accountID int64, actionKey string, limit int, loc *time.Location, now time.Time) (int, bool, error)
	Refund(ctx context.Context, accountID int64, actionKey string, loc *time.Location, now time.Time) error
	Remaining(ctx context.Context, accountID int64, actionKey string, limit int, loc *time.Location, now time.Time) (int, error)
}

// Recorder receives gate outcomes for metrics. May be nil.
type Recorder interface {
	RecordGateOutcome(action, outcome string)
	RecordPointsDebited(points int)
}

// Outcome is the success result of a gated action: the action's own
// output plus the updated balance and remaining daily quota for display.
type Outcome struct {
	Action         string
	Result         string
	Balance        int
	QuotaRemaining int
}

// Policy sequences the gates in front of every metered action, in fixed
// order: daily rate limit, then points sufficiency, then the action
// itself, then the debit. It short-circuits on the first failure, and a
// failure before the action runs consumes nothing.
type Policy struct {
	ledger        Ledger
	limiter       Limiter
	runner        actions.Runner
	recorder      Recorder
	operatorEmail string
	limitOverride int // 0 keeps catalog defaults
	now           func() time.Time
	log           logger.Logger
}

// NewPolicy creates the gating policy. recorder may be nil.
func NewPolicy(ledger Ledger, limiter Limiter, runner actions.Runner, recorder Recorder, operatorEmail string, limitOverride int, log logger.Logger) *Policy {
	return &Policy{
		ledger:        ledger,
		limiter:       limiter,
		runner:        runner,
		recorder:      recorder,
		operatorEmail: operatorEmail,
		limitOverride: limitOverride,
		now:           time.Now,
		log:           log,
	}
}

// SetClock overrides the policy clock. Tests only.
func (p *Policy) SetClock(now func() time.Time) {
	p.now = now
}

// DailyLimit resolves the effective daily cap for an action.
func (p *Policy) DailyLimit(a actions.Action) int {
	if p.limitOverride > 0 {
		return p.limitOverride
	}
	return a.DailyLimit
}

// Execute runs the metered action identified by key for acct, applying
// every gate. The returned error is a domain error describing exactly
// which gate rejected, or the wrapped upstream failure.
func (p *Policy) Execute(ctx context.Context, acct *accounts.Account, key string, in actions.Input) (*Outcome, error) {
	action, ok := actions.Lookup(key)
	if !ok {
		return nil, domain.NewNotFoundError("action")
	}

	if acct.IsSuperAdmin(p.operatorEmail) {
		return p.executeUnmetered(ctx, acct, action, in)
	}

	now := p.now()
	loc := acct.Location()
	limit := p.DailyLimit(action)

	quotaLeft, allowed, err := p.limiter.TryConsume(ctx, acct.ID, action.Key, limit, loc, now)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	if !allowed {
		p.record(action.Key, "rate_limited")
		return nil, domain.NewRateLimitError(action.Key, limit)
	}

	enough, balance, err := p.ledger.Check(ctx, acct, action.Cost)
	if err != nil {
		p.refund(ctx, acct, action.Key, loc, now)
		return nil, domain.NewInternalError(err)
	}
	if !enough {
		// The use consumed above is returned so a points rejection
		// leaves today's counter untouched.
		p.refund(ctx, acct, action.Key, loc, now)
		p.record(action.Key, "insufficient_points")
		return nil, domain.NewInsufficientPointsError(action.Key, action.Cost, balance)
	}

	result, err := p.runner.Run(ctx, action.Key, in)
	if err != nil {
		p.record(action.Key, "upstream_failed")
		return nil, domain.NewUpstreamError(action.Key, err)
	}

	newBalance, err := p.ledger.Debit(ctx, acct, action.Cost)
	if err != nil {
		// The action already succeeded; surface the result but log the
		// missed debit loudly.
		p.log.Error("debit failed after successful action", "account_id", acct.ID, "action", action.Key, "error", err)
		newBalance = balance
	} else {
		if p.recorder != nil {
			p.recorder.RecordPointsDebited(action.Cost)
		}
	}

	p.record(action.Key, "success")
	return &Outcome{
		Action:         action.Key,
		Result:         result,
		Balance:        newBalance,
		QuotaRemaining: quotaLeft,
	}, nil
}

// executeUnmetered runs the action for the operator: no window, points,
// or rate checks, and no counters maintained.
func (p *Policy) executeUnmetered(ctx context.Context, acct *accounts.Account, action actions.Action, in actions.Input) (*Outcome, error) {
	result, err := p.runner.Run(ctx, action.Key, in)
	if err != nil {
		p.record(action.Key, "upstream_failed")
		return nil, domain.NewUpstreamError(action.Key, err)
	}

	p.record(action.Key, "success")
	return &Outcome{
		Action:         action.Key,
		Result:         result,
		Balance:        acct.PointsBalance,
		QuotaRemaining: p.DailyLimit(action),
	}, nil
}

func (p *Policy) refund(ctx context.Context, acct *accounts.Account, actionKey string, loc *time.Location, now time.Time) {
	if err := p.limiter.Refund(ctx, acct.ID, actionKey, loc, now); err != nil {
		p.log.Error("failed to refund daily quota", "account_id", acct.ID, "action", actionKey, "error", err)
	}
}

func (p *Policy) record(action, outcome string) {
	if p.recorder != nil {
		p.recorder.RecordGateOutcome(action, outcome)
	}
}
