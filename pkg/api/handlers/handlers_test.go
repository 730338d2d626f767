package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memolab/admingate/pkg/accounts"
	"github.com/memolab/admingate/pkg/auth"
	"github.com/memolab/admingate/config"
)

// fakeRepo backs the handler tests with an in-memory account table.
type fakeRepo struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]*accounts.Account
	applied   []int64
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nextID: 1, byID: map[int64]*accounts.Account{}}
}

func (f *fakeRepo) add(acct *accounts.Account) *accounts.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct.ID == 0 {
		acct.ID = f.nextID
	}
	if acct.ID >= f.nextID {
		f.nextID = acct.ID + 1
	}
	f.byID[acct.ID] = acct
	return acct
}

func (f *fakeRepo) Create(ctx context.Context, email, username, passwordHash, timezone string) (*accounts.Account, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.add(&accounts.Account{
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Timezone:     timezone,
	}), nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (*accounts.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("account %d not found", id)
	}
	return acct, nil
}

func (f *fakeRepo) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.byID {
		if acct.Email == email {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("account %q not found", email)
}

func (f *fakeRepo) List(ctx context.Context) ([]accounts.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]accounts.Account, 0, len(f.byID))
	for _, acct := range f.byID {
		out = append(out, *acct)
	}
	return out, nil
}

func (f *fakeRepo) SetApplied(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].IsApplied = true
	f.applied = append(f.applied, id)
	return nil
}

func (f *fakeRepo) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].IsAdmin = isAdmin
	return nil
}

func (f *fakeRepo) Balance(ctx context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].PointsBalance, nil
}

// fakeQuotas serves fixed remaining counts per action key.
type fakeQuotas struct {
	remaining map[string]int
}

func (f *fakeQuotas) Remaining(ctx context.Context, accountID int64, actionKey string, limit int, loc *time.Location, now time.Time) (int, error) {
	if r, ok := f.remaining[actionKey]; ok {
		return r, nil
	}
	return limit, nil
}

// fakeAdminMailer records the mails the admin flow sends.
type fakeAdminMailer struct {
	applications int
	approvals    int
	lastApprovee string
}

func (f *fakeAdminMailer) SendAdminApplication(operatorEmail, applicantEmail, applicantName string, applicantID int64) error {
	f.applications++
	return nil
}

func (f *fakeAdminMailer) SendApprovalNotice(toEmail, toName string) error {
	f.approvals++
	f.lastApprovee = toEmail
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 24,
		OperatorEmail:      "operator@example.com",
		DefaultTimezone:    "Asia/Tokyo",
	}
}

func mustHash(password string) string {
	h, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
}
