package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/logger"
	"github.com/memolab/admingate/pkg/subscription"
)

type memLister struct {
	accounts []accounts.Account
}

func (m *memLister) ListExpiringAdmins(ctx context.Context, now time.Time, within time.Duration) ([]accounts.Account, error) {
	return m.accounts, nil
}

type memNoticeStore struct {
	marked map[int64]map[int]bool
}

func (m *memNoticeStore) MarkExpiryNotice(ctx context.Context, accountID int64, bucket int) (bool, error) {
	if m.marked == nil {
		m.marked = map[int64]map[int]bool{}
	}
	if m.marked[accountID] == nil {
		m.marked[accountID] = map[int]bool{}
	}
	if m.marked[accountID][bucket] {
		return false, nil
	}
	m.marked[accountID][bucket] = true
	return true, nil
}

type memSender struct {
	sent int
}

func (m *memSender) SendExpiryNotice(toEmail, toName string, remaining time.Duration) error {
	m.sent++
	return nil
}

func TestExpirySweepNotifiesOncePerBucket(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(2 * time.Hour)

	lister := &memLister{accounts: []accounts.Account{
		{ID: 1, Email: "a@example.com", IsAdmin: true, SubscriptionExpiresAt: &exp},
	}}
	sender := &memSender{}
	notifier := subscription.NewNotifier(&memNoticeStore{}, sender, logger.Default())

	cm := NewCronManager(lister, notifier, nil, logger.Default())
	cm.SetClock(func() time.Time { return now })

	// Two sweeps inside the same minute bucket send a single notice.
	cm.RunExpirySweep()
	cm.RunExpirySweep()
	assert.Equal(t, 1, sender.sent)

	// A minute later the bucket changes and a new notice goes out.
	cm.SetClock(func() time.Time { return now.Add(time.Minute) })
	cm.RunExpirySweep()
	assert.Equal(t, 2, sender.sent)
}

func TestExpirySweepSkipsHealthyWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(48 * time.Hour)

	lister := &memLister{accounts: []accounts.Account{
		{ID: 1, Email: "a@example.com", IsAdmin: true, SubscriptionExpiresAt: &exp},
	}}
	sender := &memSender{}
	notifier := subscription.NewNotifier(&memNoticeStore{}, sender, logger.Default())

	cm := NewCronManager(lister, notifier, nil, logger.Default())
	cm.SetClock(func() time.Time { return now })

	cm.RunExpirySweep()
	assert.Zero(t, sender.sent)
}

func TestSetupJobsRegistersSweep(t *testing.T) {
	notifier := subscription.NewNotifier(&memNoticeStore{}, &memSender{}, logger.Default())
	cm := NewCronManager(&memLister{}, notifier, nil, logger.Default())
	require.NoError(t, cm.SetupJobs())
}
