package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	surface    *fakeSurface
	contacts   *fakeContactRepo
	records    *fakeDeliveryRepo
	sink       *recordingSink
	guard      *RunGuard
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	logger := testLogger()

	surface := newFakeSurface()
	surface.counts = map[string]int{"门店A": 10, "门店B": 25}

	contacts := newFakeContactRepo()
	require.NoError(t, contacts.ReplaceForAccount(context.Background(), "scope-1", "门店A", []*domain.Contact{
		{ID: "c-a", UserScope: "scope-1", DisplayName: "张伟", AvatarRef: "a.png", OwningAccountName: "门店A"},
		{ID: "c-b", UserScope: "scope-1", DisplayName: "李娜", AvatarRef: "b.png", OwningAccountName: "门店A"},
	}))

	records := newFakeDeliveryRepo()
	sink := &recordingSink{}
	guard := NewRunGuard()

	sessions := NewSessionManager(func(context.Context) (console.Surface, error) {
		return surface, nil
	}, console.Credentials{Username: "u", Password: "p"}, logger)
	switcher := NewAccountSwitchVerifier(SwitchConfig{PollRounds: 3}, logger)
	planner := NewPacingPlanner(PacingConfig{ActiveHoursPerDay: 12, MinInterval: time.Millisecond})

	d := NewDispatcher(contacts, NewIdempotencyLedger(records, logger), planner,
		sessions, switcher, sink, guard, logger, DispatcherConfig{})
	d.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	return &dispatchFixture{
		dispatcher: d,
		surface:    surface,
		contacts:   contacts,
		records:    records,
		sink:       sink,
		guard:      guard,
	}
}

func newTestTask(items []domain.ContentItem, contactIDs ...string) *domain.OutreachTask {
	return &domain.OutreachTask{
		UserScope:            "scope-1",
		ContentItems:         items,
		TargetCompletionDays: 1,
		SelectedAccountNames: []string{"门店A"},
		SelectedContactIDs:   contactIDs,
	}
}

func waitNotRunning(t *testing.T, d *Dispatcher) {
	t.Helper()
	require.Eventually(t, func() bool { return !d.Status().IsRunning }, 5*time.Second, 2*time.Millisecond)
}

func TestDispatch_DeliversEveryItemToEveryContact(t *testing.T) {
	f := newDispatchFixture(t)
	items := []domain.ContentItem{
		domain.TextContent{Body: "新品到店，欢迎来看"},
		domain.VideoContent{MaterialID: 7},
	}

	id, err := f.dispatcher.StartDispatch(newTestTask(items, "c-a", "c-b"))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	waitNotRunning(t, f.dispatcher)

	assert.False(t, f.guard.Held())
	assert.Equal(t, 4, f.records.count())

	// Two distinct hashes, each recorded once per contact.
	perHash := make(map[string]int)
	for _, rec := range f.records.all() {
		perHash[rec.ContentHash]++
		assert.Equal(t, id, rec.TaskID)
	}
	require.Len(t, perHash, 2)
	for _, n := range perHash {
		assert.Equal(t, 2, n)
	}

	// Text leads, then the material, per contact.
	delivered := f.surface.deliveredItems()
	require.Len(t, delivered, 4)
	assert.Equal(t, domain.ContentTypeText, delivered[0].item.Type())
	assert.Equal(t, domain.ContentTypeVideo, delivered[1].item.Type())
	assert.Equal(t, []string{"张伟", "李娜"}, f.surface.keywords)

	last, ok := f.sink.lastDispatch()
	require.True(t, ok)
	assert.Equal(t, 2, last.SuccessCount)
	assert.Zero(t, last.FailCount)
	assert.Zero(t, last.SkipCount)
	assert.InDelta(t, 100.0, last.ProgressPercent, 1e-9)
}

func TestDispatch_SecondRunSkipsSatisfiedContacts(t *testing.T) {
	f := newDispatchFixture(t)
	items := []domain.ContentItem{
		domain.TextContent{Body: "新品到店，欢迎来看"},
		domain.VideoContent{MaterialID: 7},
	}

	_, err := f.dispatcher.StartDispatch(newTestTask(items, "c-a", "c-b"))
	require.NoError(t, err)
	waitNotRunning(t, f.dispatcher)
	require.Equal(t, 4, f.records.count())

	_, err = f.dispatcher.StartDispatch(newTestTask(items, "c-a", "c-b"))
	require.NoError(t, err)
	waitNotRunning(t, f.dispatcher)

	// Nothing re-sent, nothing re-recorded.
	assert.Equal(t, 4, f.records.count())
	assert.Len(t, f.surface.deliveredItems(), 4)

	last, ok := f.sink.lastDispatch()
	require.True(t, ok)
	assert.Equal(t, 2, last.SkipCount)
	assert.Zero(t, last.SuccessCount)
}

func TestDispatch_RejectsWhenRunSlotHeld(t *testing.T) {
	f := newDispatchFixture(t)
	require.True(t, f.guard.TryAcquire())
	defer f.guard.Release()

	_, err := f.dispatcher.StartDispatch(newTestTask(
		[]domain.ContentItem{domain.TextContent{Body: "hi"}}, "c-a"))
	assert.ErrorIs(t, err, domain.ErrTaskAlreadyRunning)
}

func TestDispatch_ValidatesTask(t *testing.T) {
	f := newDispatchFixture(t)

	_, err := f.dispatcher.StartDispatch(newTestTask(nil, "c-a"))
	assert.Error(t, err)

	_, err = f.dispatcher.StartDispatch(newTestTask(
		[]domain.ContentItem{domain.TextContent{Body: "hi"}}))
	assert.Error(t, err)
	assert.False(t, f.guard.Held())
}

func TestDispatch_PauseAndResumeConvergeWithoutDuplicates(t *testing.T) {
	f := newDispatchFixture(t)
	items := []domain.ContentItem{
		domain.TextContent{Body: "大家好"},
		domain.VideoContent{MaterialID: 7},
	}

	// The first suspension point pauses the run; later sleeps are no-ops.
	var mu sync.Mutex
	sleepCalls := 0
	f.dispatcher.sleep = func(ctx context.Context, _ time.Duration) error {
		mu.Lock()
		sleepCalls++
		first := sleepCalls == 1
		mu.Unlock()
		if first {
			go func() { _ = f.dispatcher.Pause() }()
			<-ctx.Done()
			return ctx.Err()
		}
		return ctx.Err()
	}

	id, err := f.dispatcher.StartDispatch(newTestTask(items, "c-a", "c-b"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.dispatcher.Status().IsPaused }, 5*time.Second, 2*time.Millisecond)
	status := f.dispatcher.Status()
	assert.True(t, status.HasResumableState)
	assert.Equal(t, id, status.TaskID)
	assert.False(t, f.guard.Held())
	paused := f.records.count()
	assert.Less(t, paused, 4)

	resumedID, err := f.dispatcher.Resume()
	require.NoError(t, err)
	assert.Equal(t, id, resumedID)
	waitNotRunning(t, f.dispatcher)

	// The resumed run converges on the same delivery set with no duplicates.
	assert.Equal(t, 4, f.records.count())
	assert.Len(t, f.surface.deliveredItems(), 4)
	assert.Equal(t, domain.RunStateIdle, f.dispatcher.Status().RunState)
}

func TestDispatch_RejectedResumeKeepsSnapshot(t *testing.T) {
	f := newDispatchFixture(t)
	items := []domain.ContentItem{
		domain.TextContent{Body: "大家好"},
		domain.VideoContent{MaterialID: 7},
	}

	var mu sync.Mutex
	sleepCalls := 0
	f.dispatcher.sleep = func(ctx context.Context, _ time.Duration) error {
		mu.Lock()
		sleepCalls++
		first := sleepCalls == 1
		mu.Unlock()
		if first {
			go func() { _ = f.dispatcher.Pause() }()
			<-ctx.Done()
			return ctx.Err()
		}
		return ctx.Err()
	}

	id, err := f.dispatcher.StartDispatch(newTestTask(items, "c-a", "c-b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.dispatcher.Status().IsPaused }, 5*time.Second, 2*time.Millisecond)

	// A sync grabs the shared run slot; the resume must be rejected without
	// destroying the paused task.
	require.True(t, f.guard.TryAcquire())
	_, err = f.dispatcher.Resume()
	assert.ErrorIs(t, err, domain.ErrTaskAlreadyRunning)

	status := f.dispatcher.Status()
	assert.True(t, status.IsPaused)
	assert.True(t, status.HasResumableState)
	assert.Equal(t, id, status.TaskID)

	// Once the slot frees up the same snapshot resumes and converges.
	f.guard.Release()
	resumedID, err := f.dispatcher.Resume()
	require.NoError(t, err)
	assert.Equal(t, id, resumedID)
	waitNotRunning(t, f.dispatcher)

	assert.Equal(t, 4, f.records.count())
	assert.Len(t, f.surface.deliveredItems(), 4)
	assert.Equal(t, domain.RunStateIdle, f.dispatcher.Status().RunState)
}

func TestDispatch_StopDiscardsPausedSnapshot(t *testing.T) {
	f := newDispatchFixture(t)

	var mu sync.Mutex
	sleepCalls := 0
	f.dispatcher.sleep = func(ctx context.Context, _ time.Duration) error {
		mu.Lock()
		sleepCalls++
		first := sleepCalls == 1
		mu.Unlock()
		if first {
			go func() { _ = f.dispatcher.Pause() }()
			<-ctx.Done()
			return ctx.Err()
		}
		return ctx.Err()
	}

	_, err := f.dispatcher.StartDispatch(newTestTask([]domain.ContentItem{
		domain.TextContent{Body: "大家好"},
		domain.VideoContent{MaterialID: 7},
	}, "c-a", "c-b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.dispatcher.Status().IsPaused }, 5*time.Second, 2*time.Millisecond)

	require.NoError(t, f.dispatcher.Stop())
	assert.False(t, f.dispatcher.Status().HasResumableState)

	_, err = f.dispatcher.Resume()
	assert.ErrorIs(t, err, domain.ErrNoResumableTask)
}

func TestDispatch_SignalsWithoutRunningTask(t *testing.T) {
	f := newDispatchFixture(t)

	assert.ErrorIs(t, f.dispatcher.Pause(), ErrNoRunningTask)
	assert.ErrorIs(t, f.dispatcher.Stop(), ErrNoRunningTask)
	_, err := f.dispatcher.Resume()
	assert.ErrorIs(t, err, domain.ErrNoResumableTask)
}

func TestDispatch_ForbiddenWindowDefersSendUntilWindowEnd(t *testing.T) {
	f := newDispatchFixture(t)

	clock := &simClock{t: time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)}
	f.dispatcher.now = clock.now
	f.dispatcher.sleep = clock.sleep
	f.surface.deliverAt = clock.now

	night, err := domain.ParseForbiddenRange("23:00", "08:00")
	require.NoError(t, err)

	task := newTestTask([]domain.ContentItem{domain.TextContent{Body: "早上好"}}, "c-a")
	task.ForbiddenRanges = []domain.ForbiddenTimeRange{night}

	_, err = f.dispatcher.StartDispatch(task)
	require.NoError(t, err)
	waitNotRunning(t, f.dispatcher)

	delivered := f.surface.deliveredItems()
	require.Len(t, delivered, 1)
	assert.Equal(t, time.Date(2025, 6, 16, 8, 0, 0, 0, time.UTC), delivered[0].at)
	assert.Equal(t, 1, f.records.count())
}

func TestDispatch_ContactNotFoundCountsAsFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.surface.locateMiss = map[string]bool{"张伟": true}

	_, err := f.dispatcher.StartDispatch(newTestTask(
		[]domain.ContentItem{domain.TextContent{Body: "hi"}}, "c-a", "c-b"))
	require.NoError(t, err)
	waitNotRunning(t, f.dispatcher)

	// The miss fails that contact only; the run continues.
	assert.Equal(t, 1, f.records.count())
	last, ok := f.sink.lastDispatch()
	require.True(t, ok)
	assert.Equal(t, 1, last.FailCount)
	assert.Equal(t, 1, last.SuccessCount)
}

func TestDispatch_SwitchFailureSkipsAccountContacts(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.contacts.ReplaceForAccount(context.Background(), "scope-1", "门店B", []*domain.Contact{
		{ID: "c-c", UserScope: "scope-1", DisplayName: "王强", AvatarRef: "c.png", OwningAccountName: "门店B"},
		{ID: "c-d", UserScope: "scope-1", DisplayName: "赵敏", AvatarRef: "d.png", OwningAccountName: "门店B"},
	}))

	// 门店A is already active; the console never re-renders for 门店B.
	f.surface.activeAccount = "门店A"
	f.surface.renderOnClick = false

	task := newTestTask([]domain.ContentItem{domain.TextContent{Body: "hi"}}, "c-a", "c-b", "c-c", "c-d")
	task.SelectedAccountNames = []string{"门店A", "门店B"}

	_, err := f.dispatcher.StartDispatch(task)
	require.NoError(t, err)
	waitNotRunning(t, f.dispatcher)

	assert.Equal(t, 2, f.records.count())
	last, ok := f.sink.lastDispatch()
	require.True(t, ok)
	assert.Equal(t, 2, last.SuccessCount)
	assert.Equal(t, 2, last.FailCount)

	// Contacts written off without a console action still advance progress;
	// observers see every position and a final 100%.
	assert.Equal(t, 4, last.Current)
	assert.Equal(t, 4, last.Total)
	assert.InDelta(t, 100.0, last.ProgressPercent, 1e-9)
	f.sink.mu.Lock()
	currents := make([]int, len(f.sink.dispatch))
	for i, p := range f.sink.dispatch {
		currents[i] = p.Current
	}
	f.sink.mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4}, currents)
}
