package domain

import (
	"time"
)

// ManagedAccount is one operable identity on the remote console.
// Rows are created or refreshed by a sync run and never deleted, only superseded.
type ManagedAccount struct {
	UserScope          string    `json:"user_scope"`
	AccountIndex       int       `json:"account_index"`
	DisplayName        string    `json:"display_name"`
	CredentialsRef     string    `json:"credentials_ref,omitempty"`
	CachedContactCount int       `json:"cached_contact_count"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Contact is one addressable recipient owned by a managed account.
// Within one account's harvest a contact is identified by (DisplayName, AvatarRef);
// display names are not unique on the console, avatar refs disambiguate.
type Contact struct {
	ID                string    `json:"id"`
	UserScope         string    `json:"user_scope"`
	DisplayName       string    `json:"display_name"`
	RemarkName        string    `json:"remark_name,omitempty"`
	AvatarRef         string    `json:"avatar_ref"`
	OwningAccountName string    `json:"owning_account_name"`
	Selected          bool      `json:"selected"`
	CreatedAt         time.Time `json:"created_at"`
}

// HarvestKey is the dedup identity of a contact within one account's harvest.
func (c *Contact) HarvestKey() string {
	return c.DisplayName + "\x1f" + c.AvatarRef
}

// DeliveryRecord is an idempotency marker proving one content item was sent to
// one contact. Insert-only; (UserScope, ContactID, ContentHash) is unique.
type DeliveryRecord struct {
	UserScope          string      `json:"user_scope"`
	ContactID          string      `json:"contact_id"`
	ContactDisplayName string      `json:"contact_display_name"`
	ContentType        ContentType `json:"content_type"`
	ContentHash        string      `json:"content_hash"`
	TaskID             string      `json:"task_id,omitempty"`
	SentAt             time.Time   `json:"sent_at"`
}

// HarvestProgress is the ephemeral per-account progress snapshot pushed to
// observers during a sync. It is never persisted.
type HarvestProgress struct {
	AccountName      string `json:"account_name"`
	AccountIndex     int    `json:"account_index"`
	TotalAccounts    int    `json:"total_accounts"`
	CollectedCount   int    `json:"collected_count"`
	ExpectedTotal    int    `json:"expected_total"`
	ScrollIterations int    `json:"scroll_iterations"`
	ElapsedMs        int64  `json:"elapsed_ms"`
}

// DispatchProgress is the ephemeral progress snapshot pushed to observers
// during an outreach run.
type DispatchProgress struct {
	Current         int     `json:"current"`
	Total           int     `json:"total"`
	SuccessCount    int     `json:"success_count"`
	FailCount       int     `json:"fail_count"`
	SkipCount       int     `json:"skip_count"`
	ProgressPercent float64 `json:"progress_percent"`
}

// AccountSyncDetail summarizes one account's harvest inside a sync result.
type AccountSyncDetail struct {
	AccountName    string  `json:"account_name"`
	Collected      int     `json:"collected"`
	ExpectedTotal  int     `json:"expected_total"`
	Completeness   float64 `json:"completeness"`
	Status         string  `json:"status"` // ok | warning | failed
	FailureMessage string  `json:"failure_message,omitempty"`
}

// SyncResult is the outward result of a full contact sync.
type SyncResult struct {
	Success          bool                `json:"success"`
	Count            int                 `json:"count"`
	PerAccountDetail []AccountSyncDetail `json:"per_account_detail"`
}
