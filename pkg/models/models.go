package models

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// RegisterRequest is the account registration payload
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=2,max=50"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the account login payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminLoginRequest carries the token password issued on payment
type AdminLoginRequest struct {
	TokenPassword string `json:"token_password" validate:"required"`
}

// AuthResponse carries a signed JWT
type AuthResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	} `json:"user"`
}

// ActionRequest is the input for a metered AI action
type ActionRequest struct {
	Title   string `json:"title" validate:"max=200"`
	Content string `json:"content" validate:"required,max=20000"`
	Target  string `json:"target,omitempty"` // translate target language
}

// ActionResponse is the success shape for a metered action: the action's
// own result plus the updated balance and remaining daily quota.
type ActionResponse struct {
	Action         string `json:"action"`
	Result         string `json:"result"`
	PointsBalance  int    `json:"points_balance"`
	QuotaRemaining int    `json:"quota_remaining"`
}

// ActionQuota reports per-action remaining daily uses
type ActionQuota struct {
	Action     string `json:"action"`
	Cost       int    `json:"cost"`
	DailyLimit int    `json:"daily_limit"`
	Remaining  int    `json:"remaining"`
}

// AdminStatusResponse reports the full gating state for the admin dashboard
type AdminStatusResponse struct {
	SubscriptionStatus string        `json:"subscription_status"`
	ExpiresAt          string        `json:"expires_at,omitempty"`
	RemainingSeconds   int64         `json:"remaining_seconds"`
	ExpiringSoon       bool          `json:"expiring_soon"`
	PointsBalance      int           `json:"points_balance"`
	Quotas             []ActionQuota `json:"quotas"`
}

// CheckoutResponse carries the Stripe checkout redirect
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}
