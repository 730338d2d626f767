package accounts

import (
	"strings"
	"time"
)

// Account represents a registered user of the memo platform.
type Account struct {
	ID                     int64
	Email                  string
	Username               string
	PasswordHash           string
	IsAdmin                bool
	IsApplied              bool
	PointsBalance          int
	SubscriptionExpiresAt  *time.Time
	AdminTokenHash         *string
	Timezone               string
	LastExpiryNoticeBucket *int
	LastLowBalanceWarn     *int
	StripeCustomerID       *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	DeletedAt              *time.Time
}

// IsSuperAdmin reports whether this account is the configured operator.
// The operator bypasses every points, time, and rate restriction. An empty
// operator email never matches.
func (a *Account) IsSuperAdmin(operatorEmail string) bool {
	if operatorEmail == "" {
		return false
	}
	return strings.EqualFold(a.Email, operatorEmail)
}

// Location resolves the account's configured time zone. Daily action caps
// roll over at midnight in this zone. Falls back to UTC on a bad name.
func (a *Account) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
