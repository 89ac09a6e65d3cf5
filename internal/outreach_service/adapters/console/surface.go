package console

import (
	"context"
	"time"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// Credentials are the login credentials for the remote console.
type Credentials struct {
	Username string
	Password string
}

// RawContact is one contact row as read off the console, before it is
// normalized into a domain.Contact.
type RawContact struct {
	DisplayName string
	RemarkName  string
	AvatarRef   string
}

// Surface abstracts the remote control surface: a driven browser session on
// the third-party marketing console. All methods act on the single stateful
// session; callers must not invoke them concurrently.
type Surface interface {
	// Authenticate logs in and waits until the workbench is reachable.
	Authenticate(ctx context.Context, creds Credentials) error

	// ListAccounts reads the display names of every managed account entry
	// visible on the console, in list order.
	ListAccounts(ctx context.Context) ([]string, error)
	// SelectAccount clicks the managed account's list entry. Verification is
	// the caller's job; a click alone proves nothing on this console.
	SelectAccount(ctx context.Context, accountName string) error
	// SelectedAccountName reads the name the console currently shows as active.
	SelectedAccountName(ctx context.Context) (string, error)
	// UngroupedContactCount reads the visible ungrouped-contact counter for
	// the active account.
	UngroupedContactCount(ctx context.Context) (int, error)

	// OpenContactList performs the UI action that opens the contact list view.
	OpenContactList(ctx context.Context) error
	// ObserveNetwork watches console traffic until a response body satisfies
	// match or the window elapses. A nil payload with nil error means no match.
	ObserveNetwork(ctx context.Context, match func(url string, body []byte) bool, window time.Duration) ([]byte, error)
	// ScrollListBy scrolls the virtualized contact list container by a pixel delta.
	ScrollListBy(ctx context.Context, pixels int) error
	// ScrollListToTop resets the contact list scroll position.
	ScrollListToTop(ctx context.Context) error
	// ReadVisibleContacts reads every currently-rendered contact row.
	ReadVisibleContacts(ctx context.Context) ([]RawContact, error)
	// ReadSummaryCounter reads the console's total-contacts summary counter.
	ReadSummaryCounter(ctx context.Context) (int, error)

	// LocateContact searches for a contact by keyword and opens its
	// conversation. Returns false when the console finds no match.
	LocateContact(ctx context.Context, keyword string) (bool, error)
	// Deliver performs the content-specific send action in the open conversation.
	Deliver(ctx context.Context, item domain.ContentItem) error

	// Screenshot dumps the current page for debugging. Best effort.
	Screenshot(ctx context.Context, path string) error
	// Close tears the session down, releasing the console login slot.
	Close() error
}

// AwaitCondition polls predicate every pollInterval until it reports true, an
// error occurs, or timeout elapses. It returns false (not an error) on
// timeout: callers decide the fallback, e.g. switching harvest strategy.
func AwaitCondition(ctx context.Context, predicate func(context.Context) (bool, error), timeout, pollInterval time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := predicate(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
