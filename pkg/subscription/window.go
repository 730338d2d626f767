package subscription

import "time"

// Status of an admin subscription window.
type Status string

const (
	StatusNone         Status = "none"
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
)

// ExpiringSoonThreshold is the remaining duration at or below which a
// window counts as expiring soon.
const ExpiringSoonThreshold = 3 * time.Hour

// Window is the evaluated state of a subscription at a point in time.
type Window struct {
	Status    Status
	ExpiresAt time.Time
	Remaining time.Duration
}

// Evaluate computes the window state for a stored expiry timestamp.
// Both operands are normalized to UTC before subtracting so the comparison
// never mixes offsets.
func Evaluate(now time.Time, expiresAt *time.Time) Window {
	if expiresAt == nil {
		return Window{Status: StatusNone}
	}

	exp := expiresAt.UTC()
	remaining := exp.Sub(now.UTC())

	w := Window{ExpiresAt: exp, Remaining: remaining}
	switch {
	case remaining <= 0:
		w.Status = StatusExpired
		w.Remaining = 0
	case remaining <= ExpiringSoonThreshold:
		w.Status = StatusExpiringSoon
	default:
		w.Status = StatusActive
	}
	return w
}

// Usable reports whether the window still grants admin access.
func (w Window) Usable() bool {
	return w.Status == StatusActive || w.Status == StatusExpiringSoon
}

// ExpiringSoon reports whether the remaining duration is inside the
// warning band.
func (w Window) ExpiringSoon() bool {
	return w.Status == StatusExpiringSoon
}

// NoticeBucket is the minute-granularity remaining-time bucket used to
// deduplicate expiring-soon notices: one notice per bucket per account.
func (w Window) NoticeBucket() int {
	return int(w.Remaining / time.Minute)
}
