package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// PgContactRepository stores harvested contacts.
type PgContactRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgContactRepository(db *pgxpool.Pool, logger *slog.Logger) *PgContactRepository {
	return &PgContactRepository{db: db, logger: logger}
}

// ReplaceForAccount bulk-replaces one account's contacts inside a single
// transaction: old rows for the account are deleted, then the fresh harvest
// is inserted. Selection state does not survive a replace; the harvest is the
// new source of truth for the account.
func (r *PgContactRepository) ReplaceForAccount(ctx context.Context, userScope, accountName string, contacts []*domain.Contact) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM contacts WHERE user_scope = $1 AND owning_account_name = $2`,
			userScope, accountName,
		); err != nil {
			return fmt.Errorf("delete old contacts: %w", err)
		}

		for _, c := range contacts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO contacts (id, user_scope, display_name, remark_name, avatar_ref, owning_account_name, selected, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				c.ID, c.UserScope, c.DisplayName, c.RemarkName, c.AvatarRef,
				c.OwningAccountName, c.Selected, c.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert contact %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error replacing contacts for account",
			"error", err, "account", accountName, "count", len(contacts))
		return err
	}
	r.logger.InfoContext(ctx, "Contacts replaced for account",
		"account", accountName, "count", len(contacts))
	return nil
}

func (r *PgContactRepository) ListByAccount(ctx context.Context, userScope, accountName string) ([]*domain.Contact, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_scope, display_name, remark_name, avatar_ref, owning_account_name, selected, created_at
		FROM contacts
		WHERE user_scope = $1 AND owning_account_name = $2
		ORDER BY created_at, id`,
		userScope, accountName,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing contacts by account", "error", err, "account", accountName)
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (r *PgContactRepository) ListByIDs(ctx context.Context, userScope string, ids []string) ([]*domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_scope, display_name, remark_name, avatar_ref, owning_account_name, selected, created_at
		FROM contacts
		WHERE user_scope = $1 AND id = ANY($2)
		ORDER BY created_at, id`,
		userScope, ids,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing contacts by ids", "error", err, "count", len(ids))
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

// UpdateSelection mutates the selected flag independently of sync runs.
func (r *PgContactRepository) UpdateSelection(ctx context.Context, userScope string, ids []string, selected bool) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE contacts SET selected = $3 WHERE user_scope = $1 AND id = ANY($2)`,
		userScope, ids, selected,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating contact selection", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanContacts(rows pgx.Rows) ([]*domain.Contact, error) {
	var contacts []*domain.Contact
	for rows.Next() {
		c := &domain.Contact{}
		if err := rows.Scan(
			&c.ID, &c.UserScope, &c.DisplayName, &c.RemarkName, &c.AvatarRef,
			&c.OwningAccountName, &c.Selected, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return contacts, nil
}
