package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint.
const uniqueViolation = "23505"

// PgDeliveryRecordRepository is the insert-only delivery ledger store. The
// exactly-once invariant is the (user_scope, contact_id, content_hash) unique
// constraint; rows are never updated or deleted (audit trail).
type PgDeliveryRecordRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgDeliveryRecordRepository(db *pgxpool.Pool, logger *slog.Logger) *PgDeliveryRecordRepository {
	return &PgDeliveryRecordRepository{db: db, logger: logger}
}

func (r *PgDeliveryRecordRepository) Exists(ctx context.Context, userScope, contactID, contentHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM delivery_records
			WHERE user_scope = $1 AND contact_id = $2 AND content_hash = $3
		)`,
		userScope, contactID, contentHash,
	).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking delivery record existence",
			"error", err, "contact_id", contactID)
		return false, err
	}
	return exists, nil
}

func (r *PgDeliveryRecordRepository) Insert(ctx context.Context, record *domain.DeliveryRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO delivery_records (user_scope, contact_id, contact_display_name, content_type, content_hash, task_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.UserScope, record.ContactID, record.ContactDisplayName,
		string(record.ContentType), record.ContentHash, record.TaskID, record.SentAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateEntry
		}
		r.logger.ErrorContext(ctx, "Error inserting delivery record",
			"error", err, "contact_id", record.ContactID, "content_type", record.ContentType)
		return err
	}
	return nil
}

func (r *PgDeliveryRecordRepository) ListByContact(ctx context.Context, userScope, contactID string) ([]*domain.DeliveryRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_scope, contact_id, contact_display_name, content_type, content_hash, task_id, sent_at
		FROM delivery_records
		WHERE user_scope = $1 AND contact_id = $2
		ORDER BY sent_at`,
		userScope, contactID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing delivery records", "error", err, "contact_id", contactID)
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DeliveryRecord
	for rows.Next() {
		rec := &domain.DeliveryRecord{}
		var contentType string
		if err := rows.Scan(
			&rec.UserScope, &rec.ContactID, &rec.ContactDisplayName,
			&contentType, &rec.ContentHash, &rec.TaskID, &rec.SentAt,
		); err != nil {
			return nil, err
		}
		rec.ContentType = domain.ContentType(contentType)
		records = append(records, rec)
	}
	return records, rows.Err()
}
