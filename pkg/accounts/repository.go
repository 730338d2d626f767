package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memolab/admingate/pkg/domain"
)

const accountColumns = `id, email, username, password_hash, is_admin, is_applied,
	points_balance, subscription_expires_at, admin_token_hash, timezone,
	last_expiry_notice_bucket, last_low_balance_warn, stripe_customer_id,
	created_at, updated_at, deleted_at`

// Repository persists accounts in Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new account repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&a.PasswordHash,
		&a.IsAdmin,
		&a.IsApplied,
		&a.PointsBalance,
		&a.SubscriptionExpiresAt,
		&a.AdminTokenHash,
		&a.Timezone,
		&a.LastExpiryNoticeBucket,
		&a.LastLowBalanceWarn,
		&a.StripeCustomerID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("account")
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// Create inserts a new account with a zero points balance and no subscription.
// A concurrent registration with the same email loses on the unique
// constraint and surfaces as a conflict, not an internal error.
func (r *Repository) Create(ctx context.Context, email, username, passwordHash, timezone string) (*Account, error) {
	q := `INSERT INTO accounts (email, username, password_hash, timezone)
	      VALUES ($1, $2, $3, $4)
	      RETURNING ` + accountColumns
	acct, err := scanAccount(r.db.QueryRow(ctx, q, email, username, passwordHash, timezone))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewConflictError("An account with this email already exists")
		}
		return nil, err
	}
	return acct, nil
}

// GetByID returns a non-deleted account by id
func (r *Repository) GetByID(ctx context.Context, id int64) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	return scanAccount(r.db.QueryRow(ctx, q, id))
}

// GetByEmail returns a non-deleted account by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 AND deleted_at IS NULL`
	return scanAccount(r.db.QueryRow(ctx, q, email))
}

// List returns all non-deleted accounts ordered by id
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE deleted_at IS NULL ORDER BY id`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetAdmin toggles the admin approval flag
func (r *Repository) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET is_admin = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, isAdmin)
	if err != nil {
		return fmt.Errorf("failed to set admin flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("account")
	}
	return nil
}

// SetApplied marks an account as having requested admin status
func (r *Repository) SetApplied(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET is_applied = TRUE, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to set applied flag: %w", err)
	}
	return nil
}

// SetStripeCustomerID stores the Stripe customer id after first checkout
func (r *Repository) SetStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE accounts SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`,
		id, customerID)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer id: %w", err)
	}
	return nil
}

// ActivateSubscription applies a completed payment in one statement: sets
// the expiry window, resets the points balance to the plan allotment (no
// rollover of unused points), stores the new token password hash, and
// clears the notice bookkeeping so a fresh cycle warns again.
func (r *Repository) ActivateSubscription(ctx context.Context, id int64, expiresAt time.Time, points int, tokenHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET subscription_expires_at = $2,
		    points_balance = $3,
		    admin_token_hash = $4,
		    last_expiry_notice_bucket = NULL,
		    last_low_balance_warn = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		id, expiresAt.UTC(), points, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("account")
	}
	return nil
}

// Balance reads the current points balance without side effects.
func (r *Repository) Balance(ctx context.Context, id int64) (int, error) {
	var balance int
	err := r.db.QueryRow(ctx,
		`SELECT points_balance FROM accounts WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NewNotFoundError("account")
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Debit decrements the balance, clamped at zero, in a single statement.
// The row lock taken by UPDATE serializes concurrent debits for the same
// account, so the balance can never go negative or lose an update.
func (r *Repository) Debit(ctx context.Context, id int64, cost int) (int, error) {
	var balance int
	err := r.db.QueryRow(ctx, `
		UPDATE accounts
		SET points_balance = GREATEST(points_balance - $2, 0),
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING points_balance`,
		id, cost).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NewNotFoundError("account")
		}
		return 0, fmt.Errorf("failed to debit points: %w", err)
	}
	return balance, nil
}

// MarkExpiryNotice records that the expiring-soon notice for the given
// minute-granularity remaining-time bucket was sent. Returns true when the
// caller won the right to send it; a repeat bucket returns false.
func (r *Repository) MarkExpiryNotice(ctx context.Context, id int64, bucket int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET last_expiry_notice_bucket = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		  AND (last_expiry_notice_bucket IS NULL OR last_expiry_notice_bucket <> $2)`,
		id, bucket)
	if err != nil {
		return false, fmt.Errorf("failed to mark expiry notice: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkLowBalanceWarn records a low-balance warning for the given balance
// value. Returns true when this value has not been warned about yet.
func (r *Repository) MarkLowBalanceWarn(ctx context.Context, id int64, balance int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET last_low_balance_warn = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		  AND (last_low_balance_warn IS NULL OR last_low_balance_warn <> $2)`,
		id, balance)
	if err != nil {
		return false, fmt.Errorf("failed to mark low balance warning: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearLowBalanceWarn resets the warning state once the balance recovers
// above the threshold, so the next dip warns again.
func (r *Repository) ClearLowBalanceWarn(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET last_low_balance_warn = NULL, updated_at = NOW()
		WHERE id = $1 AND last_low_balance_warn IS NOT NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to clear low balance warning: %w", err)
	}
	return nil
}

// ListExpiringAdmins returns admin accounts whose subscription expires
// within the given window from now. Used by the expiry-notice sweep.
func (r *Repository) ListExpiringAdmins(ctx context.Context, now time.Time, within time.Duration) ([]Account, error) {
	q := `SELECT ` + accountColumns + `
	      FROM accounts
	      WHERE deleted_at IS NULL
	        AND is_admin = TRUE
	        AND subscription_expires_at IS NOT NULL
	        AND subscription_expires_at > $1
	        AND subscription_expires_at <= $2
	      ORDER BY subscription_expires_at`
	rows, err := r.db.Query(ctx, q, now.UTC(), now.UTC().Add(within))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring admins: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SoftDelete marks an account as deleted
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("account")
	}
	return nil
}
