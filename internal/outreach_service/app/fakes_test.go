package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDeliveryRepo is an in-memory DeliveryRecordRepository enforcing the same
// (user_scope, contact_id, content_hash) uniqueness as the postgres table.
type fakeDeliveryRepo struct {
	mu    sync.Mutex
	byKey map[string]*domain.DeliveryRecord
	order []*domain.DeliveryRecord

	insertErr error
	existsErr error
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{byKey: make(map[string]*domain.DeliveryRecord)}
}

func recordKey(userScope, contactID, contentHash string) string {
	return userScope + "\x1f" + contactID + "\x1f" + contentHash
}

func (r *fakeDeliveryRepo) Exists(_ context.Context, userScope, contactID, contentHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.byKey[recordKey(userScope, contactID, contentHash)]
	return ok, nil
}

func (r *fakeDeliveryRepo) Insert(_ context.Context, record *domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	key := recordKey(record.UserScope, record.ContactID, record.ContentHash)
	if _, dup := r.byKey[key]; dup {
		return domain.ErrDuplicateEntry
	}
	r.byKey[key] = record
	r.order = append(r.order, record)
	return nil
}

func (r *fakeDeliveryRepo) ListByContact(_ context.Context, userScope, contactID string) ([]*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.DeliveryRecord
	for _, rec := range r.order {
		if rec.UserScope == userScope && rec.ContactID == contactID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *fakeDeliveryRepo) all() []*domain.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.DeliveryRecord(nil), r.order...)
}

// fakeContactRepo is an in-memory ContactRepository.
type fakeContactRepo struct {
	mu        sync.Mutex
	byAccount map[string][]*domain.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{byAccount: make(map[string][]*domain.Contact)}
}

func (r *fakeContactRepo) ReplaceForAccount(_ context.Context, _ string, accountName string, contacts []*domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAccount[accountName] = append([]*domain.Contact(nil), contacts...)
	return nil
}

func (r *fakeContactRepo) ListByAccount(_ context.Context, _ string, accountName string) ([]*domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Contact(nil), r.byAccount[accountName]...), nil
}

func (r *fakeContactRepo) ListByIDs(_ context.Context, _ string, ids []string) ([]*domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*domain.Contact
	for _, contacts := range r.byAccount {
		for _, c := range contacts {
			if want[c.ID] {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (r *fakeContactRepo) UpdateSelection(_ context.Context, _ string, ids []string, selected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, contacts := range r.byAccount {
		for _, c := range contacts {
			if want[c.ID] {
				c.Selected = selected
			}
		}
	}
	return nil
}

// fakeAccountRepo is an in-memory ManagedAccountRepository.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts []*domain.ManagedAccount
}

func (r *fakeAccountRepo) Upsert(_ context.Context, account *domain.ManagedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.accounts {
		if a.UserScope == account.UserScope && a.AccountIndex == account.AccountIndex {
			r.accounts[i] = account
			return nil
		}
	}
	r.accounts = append(r.accounts, account)
	return nil
}

func (r *fakeAccountRepo) ListByScope(_ context.Context, userScope string) ([]*domain.ManagedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ManagedAccount
	for _, a := range r.accounts {
		if a.UserScope == userScope {
			out = append(out, a)
		}
	}
	return out, nil
}

type deliveredItem struct {
	keyword string
	item    domain.ContentItem
	at      time.Time
}

// fakeSurface is a scriptable console.Surface. Fields default to a console
// where everything works: switches re-render, contacts are found, deliveries
// succeed.
type fakeSurface struct {
	mu sync.Mutex

	authErr error
	closed  bool

	accounts      []string
	activeAccount string
	counts        map[string]int // ungrouped counter per account, "" = pre-login
	selectClicks  int
	selectErr     error
	renderOnClick bool // when false, SelectAccount never updates the active name

	networkPayload []byte
	visibleFn      func(scrollPos int) []console.RawContact
	scrollPos      int
	summaryCount   int

	locateMiss map[string]bool // keywords the search finds nothing for
	keywords   []string
	lastKeyword string

	deliverErr func(item domain.ContentItem) error
	deliverAt  func() time.Time
	delivered  []deliveredItem
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{counts: make(map[string]int), renderOnClick: true}
}

func (s *fakeSurface) Authenticate(_ context.Context, _ console.Credentials) error {
	return s.authErr
}

func (s *fakeSurface) ListAccounts(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accounts...), nil
}

func (s *fakeSurface) SelectAccount(_ context.Context, accountName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectClicks++
	if s.selectErr != nil {
		return s.selectErr
	}
	if s.renderOnClick {
		s.activeAccount = accountName
	}
	return nil
}

func (s *fakeSurface) SelectedAccountName(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeAccount, nil
}

func (s *fakeSurface) UngroupedContactCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[s.activeAccount], nil
}

func (s *fakeSurface) OpenContactList(_ context.Context) error { return nil }

func (s *fakeSurface) ObserveNetwork(_ context.Context, match func(url string, body []byte) bool, _ time.Duration) ([]byte, error) {
	s.mu.Lock()
	payload := s.networkPayload
	s.mu.Unlock()
	if payload != nil && match("/api/contact/list", payload) {
		return payload, nil
	}
	return nil, nil
}

func (s *fakeSurface) ScrollListBy(_ context.Context, pixels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollPos += pixels
	return nil
}

func (s *fakeSurface) ScrollListToTop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollPos = 0
	return nil
}

func (s *fakeSurface) ReadVisibleContacts(_ context.Context) ([]console.RawContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visibleFn == nil {
		return nil, nil
	}
	return s.visibleFn(s.scrollPos), nil
}

func (s *fakeSurface) ReadSummaryCounter(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryCount, nil
}

func (s *fakeSurface) LocateContact(_ context.Context, keyword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, keyword)
	s.lastKeyword = keyword
	if s.locateMiss[keyword] {
		return false, nil
	}
	return true, nil
}

func (s *fakeSurface) Deliver(_ context.Context, item domain.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliverErr != nil {
		if err := s.deliverErr(item); err != nil {
			return err
		}
	}
	var at time.Time
	if s.deliverAt != nil {
		at = s.deliverAt()
	}
	s.delivered = append(s.delivered, deliveredItem{keyword: s.lastKeyword, item: item, at: at})
	return nil
}

func (s *fakeSurface) Screenshot(_ context.Context, _ string) error { return nil }

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSurface) deliveredItems() []deliveredItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deliveredItem(nil), s.delivered...)
}

// recordingSink captures progress events for assertions.
type recordingSink struct {
	mu       sync.Mutex
	harvest  []domain.HarvestProgress
	dispatch []domain.DispatchProgress
}

func (s *recordingSink) PublishHarvestProgress(_ context.Context, _ string, p domain.HarvestProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.harvest = append(s.harvest, p)
}

func (s *recordingSink) PublishDispatchProgress(_ context.Context, _ string, p domain.DispatchProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch = append(s.dispatch, p)
}

func (s *recordingSink) lastDispatch() (domain.DispatchProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dispatch) == 0 {
		return domain.DispatchProgress{}, false
	}
	return s.dispatch[len(s.dispatch)-1], true
}

// simClock is a fake time source whose sleep advances the clock instead of
// blocking. Used to test forbidden-window suppression without waiting.
type simClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *simClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *simClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	if d > 0 {
		c.t = c.t.Add(d)
	}
	c.mu.Unlock()
	return ctx.Err()
}
