package domain

import (
	"context"
)

// ContactRepository manages harvested contacts. Contacts are bulk-replaced per
// account on each sync; Selected is mutated independently by the caller.
type ContactRepository interface {
	ReplaceForAccount(ctx context.Context, userScope, accountName string, contacts []*Contact) error
	ListByAccount(ctx context.Context, userScope, accountName string) ([]*Contact, error)
	ListByIDs(ctx context.Context, userScope string, ids []string) ([]*Contact, error)
	UpdateSelection(ctx context.Context, userScope string, ids []string, selected bool) error
}

// ManagedAccountRepository stores the operable console identities.
// Rows are upserted by sync runs and never deleted.
type ManagedAccountRepository interface {
	Upsert(ctx context.Context, account *ManagedAccount) error
	ListByScope(ctx context.Context, userScope string) ([]*ManagedAccount, error)
}

// DeliveryRecordRepository is the insert-only idempotency ledger store.
type DeliveryRecordRepository interface {
	Exists(ctx context.Context, userScope, contactID, contentHash string) (bool, error)
	Insert(ctx context.Context, record *DeliveryRecord) error
	ListByContact(ctx context.Context, userScope, contactID string) ([]*DeliveryRecord, error)
}
