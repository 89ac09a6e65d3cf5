package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// IdempotencyLedger answers "was this content already sent to this contact"
// and records confirmed deliveries. The exactly-once guarantee rests on the
// (userScope, contactID, contentHash) unique constraint underneath.
type IdempotencyLedger struct {
	records domain.DeliveryRecordRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewIdempotencyLedger creates a ledger over the given record store.
func NewIdempotencyLedger(records domain.DeliveryRecordRepository, logger *slog.Logger) *IdempotencyLedger {
	return &IdempotencyLedger{
		records: records,
		logger:  logger.With("service", "idempotency_ledger"),
		now:     time.Now,
	}
}

// ContentHash returns the stable hash of a content item's semantic identity.
// The type tag is mixed in so a text body can never collide with, say, a
// material reference that canonicalizes to the same bytes. Order-insensitive
// item types (image sets) canonicalize sorted, so incidental element order
// upstream never produces a spurious duplicate hash.
func ContentHash(item domain.ContentItem) string {
	sum := sha3.Sum256([]byte(string(item.Type()) + "\x00" + item.CanonicalPayload()))
	return hex.EncodeToString(sum[:])
}

// HasSent reports whether a delivery record exists for the item and contact.
func (l *IdempotencyLedger) HasSent(ctx context.Context, userScope, contactID string, item domain.ContentItem) (bool, error) {
	exists, err := l.records.Exists(ctx, userScope, contactID, ContentHash(item))
	if err != nil {
		return false, fmt.Errorf("failed to query delivery record: %w", err)
	}
	return exists, nil
}

// Record writes the idempotency marker for a confirmed delivery. A concurrent
// duplicate insert is tolerated: the record already existing is exactly the
// state Record is meant to establish.
func (l *IdempotencyLedger) Record(ctx context.Context, userScope, contactID, contactDisplayName string, item domain.ContentItem, taskID string) error {
	record := &domain.DeliveryRecord{
		UserScope:          userScope,
		ContactID:          contactID,
		ContactDisplayName: contactDisplayName,
		ContentType:        item.Type(),
		ContentHash:        ContentHash(item),
		TaskID:             taskID,
		SentAt:             l.now().UTC(),
	}
	if err := l.records.Insert(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			l.logger.WarnContext(ctx, "Delivery record already present", "contact_id", contactID, "content_type", item.Type())
			return nil
		}
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	return nil
}

// History returns the audit trail for one contact.
func (l *IdempotencyLedger) History(ctx context.Context, userScope, contactID string) ([]*domain.DeliveryRecord, error) {
	return l.records.ListByContact(ctx, userScope, contactID)
}
