package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/subscription"
)

// ExpiringLister finds admin accounts whose window closes within a horizon.
type ExpiringLister interface {
	ListExpiringAdmins(ctx context.Context, now time.Time, within time.Duration) ([]accounts.Account, error)
}

// NoticeCounter counts sent notices for metrics. May be nil.
type NoticeCounter interface {
	RecordExpiryNoticeSent()
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron     *cron.Cron
	lister   ExpiringLister
	notifier *subscription.Notifier
	metrics  NoticeCounter
	log      logger.Logger
	now      func() time.Time
}

// NewCronManager creates a new cron manager
func NewCronManager(lister ExpiringLister, notifier *subscription.Notifier, metrics NoticeCounter, log logger.Logger) *CronManager {
	return &CronManager{
		cron:     cron.New(),
		lister:   lister,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the time source in tests.
func (cm *CronManager) SetClock(now func() time.Time) {
	cm.now = now
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	// Every minute: warn admins whose window is inside the expiring-soon
	// band. The notifier dedups per bucket, so the tight schedule only
	// controls delivery latency, not mail volume.
	if _, err := cm.cron.AddFunc("* * * * *", cm.RunExpirySweep); err != nil {
		return err
	}

	cm.log.Info("cron jobs configured", "jobs", "expiry sweep every minute")
	return nil
}

// RunExpirySweep checks every soon-expiring admin once. Exported so the
// sweep can also be triggered manually.
func (cm *CronManager) RunExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	now := cm.now()
	expiring, err := cm.lister.ListExpiringAdmins(ctx, now, subscription.ExpiringSoonThreshold)
	if err != nil {
		cm.log.Error("expiry sweep failed to list accounts", "error", err)
		return
	}

	for i := range expiring {
		sent, err := cm.notifier.Notify(ctx, &expiring[i], now)
		if err != nil {
			cm.log.Error("expiry notice failed", "account_id", expiring[i].ID, "error", err)
			continue
		}
		if sent && cm.metrics != nil {
			cm.metrics.RecordExpiryNoticeSent()
		}
	}
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the cron scheduler
func (cm *CronManager) Stop() {
	cm.cron.Stop()
}
