package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// PgManagedAccountRepository stores the operable console identities.
type PgManagedAccountRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgManagedAccountRepository(db *pgxpool.Pool, logger *slog.Logger) *PgManagedAccountRepository {
	return &PgManagedAccountRepository{db: db, logger: logger}
}

// Upsert refreshes an account row keyed by (user_scope, account_index).
// Accounts are never deleted, only superseded by the next sync.
func (r *PgManagedAccountRepository) Upsert(ctx context.Context, account *domain.ManagedAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO managed_accounts (user_scope, account_index, display_name, credentials_ref, cached_contact_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_scope, account_index) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			credentials_ref = EXCLUDED.credentials_ref,
			cached_contact_count = EXCLUDED.cached_contact_count,
			updated_at = EXCLUDED.updated_at`,
		account.UserScope, account.AccountIndex, account.DisplayName,
		account.CredentialsRef, account.CachedContactCount, account.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting managed account",
			"error", err, "account", account.DisplayName, "index", account.AccountIndex)
		return err
	}
	return nil
}

func (r *PgManagedAccountRepository) ListByScope(ctx context.Context, userScope string) ([]*domain.ManagedAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_scope, account_index, display_name, credentials_ref, cached_contact_count, updated_at
		FROM managed_accounts
		WHERE user_scope = $1
		ORDER BY account_index`,
		userScope,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing managed accounts", "error", err)
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.ManagedAccount
	for rows.Next() {
		a := &domain.ManagedAccount{}
		if err := rows.Scan(
			&a.UserScope, &a.AccountIndex, &a.DisplayName,
			&a.CredentialsRef, &a.CachedContactCount, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
