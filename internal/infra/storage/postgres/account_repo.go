package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/storage"
)

// AccountRepo implements storage.AccountRepository using PostgreSQL.
type AccountRepo struct {
	db *DB
}

var _ storage.AccountRepository = (*AccountRepo)(nil)

// NewAccountRepo creates a new PostgreSQL account repository.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, user_id, platform, platform_user_id, access_token, refresh_token,
	expires_at, created_at, updated_at`

// Get retrieves an account by id.
func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.PlatformAccount, error) {
	var acct domain.PlatformAccount
	err := r.db.GetContext(ctx, &acct, `SELECT `+accountColumns+` FROM platform_accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// Create inserts a new account.
func (r *AccountRepo) Create(ctx context.Context, acct *domain.PlatformAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO platform_accounts (`+accountColumns+`)
		VALUES (:id, :user_id, :platform, :platform_user_id, :access_token, :refresh_token,
			:expires_at, :created_at, :updated_at)`, acct)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateTokens writes refreshed tokens guarded by the previous expiry.
func (r *AccountRepo) UpdateTokens(
	ctx context.Context,
	id string,
	expectedExpiresAt *time.Time,
	upd domain.TokenUpdate,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE platform_accounts
		SET access_token = $1,
			refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
			expires_at = $3,
			updated_at = now()
		WHERE id = $4 AND expires_at IS NOT DISTINCT FROM $5`,
		upd.AccessToken, upd.RefreshToken, upd.ExpiresAt, id, expectedExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM platform_accounts WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("account %s: %w", id, domain.ErrStaleTokens)
}
