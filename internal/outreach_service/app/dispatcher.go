package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// ErrNoRunningTask is returned by pause/stop when nothing is running.
var ErrNoRunningTask = errors.New("no outreach task is running")

// DispatcherConfig holds the dispatch tunables not owned by the planner.
type DispatcherConfig struct {
	InterItemDelay time.Duration
}

// PausedTaskSnapshot retains a paused task's parameters in memory across the
// session teardown so resume can rebuild the run. There is no positional
// cursor: resume replays the full contact loop and correctness rests entirely
// on the per-item idempotency check. At-least-once retry, exactly-once effect.
type PausedTaskSnapshot struct {
	Task     *domain.OutreachTask
	PausedAt time.Time
}

// TaskStatus is the outward status of the dispatch engine.
type TaskStatus struct {
	IsRunning         bool            `json:"is_running"`
	IsPaused          bool            `json:"is_paused"`
	HasResumableState bool            `json:"has_resumable_state"`
	TaskID            string          `json:"task_id,omitempty"`
	RunState          domain.RunState `json:"run_state"`
}

// runControl is the handle on the in-flight run goroutine.
type runControl struct {
	task    *domain.OutreachTask
	cancel  context.CancelFunc
	request domain.RunState // pause or stop, set by the external signal
	done    chan struct{}
}

// Dispatcher delivers every selected content item to every selected,
// not-yet-satisfied contact, pacing sends over the target window, and runs the
// pause/resume/stop state machine. All console interactions are sequential:
// the remote surface is one stateful UI session and concurrent actions would
// corrupt it.
type Dispatcher struct {
	contacts domain.ContactRepository
	ledger   *IdempotencyLedger
	planner  *PacingPlanner
	sessions *SessionManager
	switcher *AccountSwitchVerifier
	progress ProgressSink
	guard    *RunGuard
	logger   *slog.Logger
	cfg      DispatcherConfig

	mu       sync.Mutex
	current  *runControl
	snapshot *PausedTaskSnapshot

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher wires the dispatch engine.
func NewDispatcher(
	contacts domain.ContactRepository,
	ledger *IdempotencyLedger,
	planner *PacingPlanner,
	sessions *SessionManager,
	switcher *AccountSwitchVerifier,
	progress ProgressSink,
	guard *RunGuard,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	return &Dispatcher{
		contacts: contacts,
		ledger:   ledger,
		planner:  planner,
		sessions: sessions,
		switcher: switcher,
		progress: progress,
		guard:    guard,
		logger:   logger.With("service", "dispatcher"),
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// StartDispatch starts the task asynchronously and returns its ID. Progress
// is pushed through the ProgressSink; the final state is readable via Status.
// Rejected immediately with ErrTaskAlreadyRunning if the run slot is held.
func (d *Dispatcher) StartDispatch(task *domain.OutreachTask) (string, error) {
	if len(task.ContentItems) == 0 {
		return "", fmt.Errorf("task has no content items")
	}
	if len(task.SelectedContactIDs) == 0 {
		return "", fmt.Errorf("task has no selected contacts")
	}
	if !d.guard.TryAcquire() {
		return "", domain.ErrTaskAlreadyRunning
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.RunState = domain.RunStateRunning
	if task.CreatedAt.IsZero() {
		task.CreatedAt = d.now().UTC()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ctrl := &runControl{task: task, cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	d.current = ctrl
	if d.snapshot != nil && d.snapshot.Task.ID != task.ID {
		d.logger.Warn("New task supersedes a paused one; discarding its snapshot",
			"paused_task_id", d.snapshot.Task.ID, "task_id", task.ID)
	}
	d.snapshot = nil
	d.mu.Unlock()

	go d.runTask(runCtx, ctrl)

	d.logger.Info("Dispatch started", "task_id", task.ID,
		"contacts", len(task.SelectedContactIDs), "items", len(task.ContentItems),
		"target_days", task.TargetCompletionDays)
	return task.ID, nil
}

// Pause signals the running task to pause at the next suspension point. The
// session is torn down (the console login slot is scarce) but the task
// parameters are retained for resume.
func (d *Dispatcher) Pause() error {
	return d.signal(domain.RunStatePaused)
}

// Stop signals the running task to stop. Retained parameters are discarded;
// no resume is possible afterwards. Stopping a paused task just discards the
// snapshot.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.current == nil && d.snapshot != nil {
		d.snapshot.Task.RunState = domain.RunStateStopped
		d.snapshot = nil
		d.mu.Unlock()
		d.logger.Info("Paused task discarded by stop")
		return nil
	}
	d.mu.Unlock()
	return d.signal(domain.RunStateStopped)
}

func (d *Dispatcher) signal(state domain.RunState) error {
	d.mu.Lock()
	ctrl := d.current
	if ctrl == nil {
		d.mu.Unlock()
		return ErrNoRunningTask
	}
	ctrl.request = state
	d.mu.Unlock()

	ctrl.cancel()
	<-ctrl.done
	return nil
}

// Resume rebuilds a fresh session and re-enters the dispatch loop from the
// beginning of the contact list. Already-satisfied contacts will be skipped
// by the ledger check, so the resumed run converges on the same delivery set
// an uninterrupted run would have produced.
func (d *Dispatcher) Resume() (string, error) {
	d.mu.Lock()
	if d.current != nil {
		d.mu.Unlock()
		return "", domain.ErrTaskAlreadyRunning
	}
	snap := d.snapshot
	d.mu.Unlock()

	if snap == nil {
		return "", domain.ErrNoResumableTask
	}

	task := snap.Task
	task.RunState = domain.RunStateIdle
	d.logger.Info("Resuming paused task", "task_id", task.ID, "paused_at", snap.PausedAt)

	// A rejected start, e.g. a sync holding the run slot, must leave the
	// snapshot intact so the task stays resumable.
	id, err := d.StartDispatch(task)
	if err != nil {
		task.RunState = domain.RunStatePaused
		return "", err
	}
	return id, nil
}

// Status reports the engine state.
func (d *Dispatcher) Status() TaskStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := TaskStatus{RunState: domain.RunStateIdle}
	if d.current != nil {
		status.IsRunning = true
		status.TaskID = d.current.task.ID
		status.RunState = domain.RunStateRunning
	} else if d.snapshot != nil {
		status.IsPaused = true
		status.HasResumableState = true
		status.TaskID = d.snapshot.Task.ID
		status.RunState = domain.RunStatePaused
	}
	return status
}

// runTask executes the run goroutine and settles the final state.
func (d *Dispatcher) runTask(ctx context.Context, ctrl *runControl) {
	defer close(ctrl.done)
	start := d.now()

	final, runErr := d.executeRun(ctx, ctrl)

	d.mu.Lock()
	ctrl.task.RunState = final
	if final == domain.RunStatePaused {
		d.snapshot = &PausedTaskSnapshot{Task: ctrl.task, PausedAt: d.now().UTC()}
	}
	d.current = nil
	d.mu.Unlock()
	d.guard.Release()

	tasksTotal.WithLabelValues(string(final)).Inc()
	if final == domain.RunStateCompleted {
		dispatchDurationSeconds.Observe(d.now().Sub(start).Seconds())
	}

	if runErr != nil {
		d.logger.Error("Dispatch run failed", "task_id", ctrl.task.ID, "error", runErr)
	} else {
		d.logger.Info("Dispatch run finished", "task_id", ctrl.task.ID, "final_state", final)
	}
}

// contactWork is one (account, contact) unit in the fixed enumeration order:
// grouped by owning account, accounts in the order selected. The order never
// changes across resumes.
type contactWork struct {
	accountName string
	contact     *domain.Contact
}

// executeRun owns the session for the whole run and returns the final state.
// Console actions receive a non-cancellable context: runs are interruptible
// only at suspension points between actions, never mid-action.
func (d *Dispatcher) executeRun(ctx context.Context, ctrl *runControl) (domain.RunState, error) {
	task := ctrl.task
	actionCtx := context.WithoutCancel(ctx)

	surface, err := d.sessions.Open(actionCtx)
	if err != nil {
		return domain.RunStateFailed, fmt.Errorf("session open failed: %w", err)
	}
	defer d.sessions.Teardown(actionCtx, surface)

	works, err := d.enumerateWork(actionCtx, task)
	if err != nil {
		return domain.RunStateFailed, err
	}
	if len(works) == 0 {
		d.logger.Warn("No dispatchable contacts matched the task selection", "task_id", task.ID)
		return domain.RunStateCompleted, nil
	}

	plan := d.planner.Plan(len(works), len(task.SelectedAccountNames), task.TargetCompletionDays)
	d.logger.Info("Pacing plan computed", "task_id", task.ID,
		"base_interval", plan.BaseInterval, "daily_throughput", plan.EstimatedDailyThroughput)

	var successCount, failCount, skipCount int
	currentAccount := ""
	failedAccounts := make(map[string]bool)

	// Every contact, including ones skipped or written off without a console
	// action, advances the published progress so observers never see gaps.
	publishProgress := func(current int) {
		d.progress.PublishDispatchProgress(actionCtx, task.UserScope, domain.DispatchProgress{
			Current:         current,
			Total:           len(works),
			SuccessCount:    successCount,
			FailCount:       failCount,
			SkipCount:       skipCount,
			ProgressPercent: float64(current) / float64(len(works)) * 100,
		})
	}

	for i, w := range works {
		if state := d.requestedState(ctrl); state != "" {
			return state, nil
		}

		if failedAccounts[w.accountName] {
			failCount++
			publishProgress(i + 1)
			continue
		}
		if w.accountName != currentAccount {
			if err := d.switcher.Switch(actionCtx, surface, w.accountName); err != nil {
				d.logger.Error("Account switch failed; skipping its contacts",
					"task_id", task.ID, "account", w.accountName, "error", err)
				failedAccounts[w.accountName] = true
				failCount++
				publishProgress(i + 1)
				continue
			}
			currentAccount = w.accountName
		}

		outcome, err := d.dispatchContact(ctx, actionCtx, ctrl, surface, w.contact)
		if err != nil {
			// Only pause/stop interrupts bubble up from a contact.
			if state := d.requestedState(ctrl); state != "" {
				return state, nil
			}
			return domain.RunStateFailed, err
		}
		switch outcome {
		case contactSkipped:
			skipCount++
		case contactSucceeded:
			successCount++
		case contactFailed:
			failCount++
		}

		publishProgress(i + 1)

		// Inter-contact pacing. Skipped contacts did not touch the console,
		// so no pacing debt is owed for them.
		if outcome != contactSkipped && i < len(works)-1 {
			if err := d.sleep(ctx, d.planner.Jitter(plan.BaseInterval)); err != nil {
				if state := d.requestedState(ctrl); state != "" {
					return state, nil
				}
				return domain.RunStateFailed, err
			}
		}
	}

	d.logger.Info("Dispatch exhausted contact list", "task_id", task.ID,
		"success", successCount, "fail", failCount, "skip", skipCount)
	return domain.RunStateCompleted, nil
}

type contactOutcome int

const (
	contactSkipped contactOutcome = iota
	contactSucceeded
	contactFailed
)

// dispatchContact delivers every not-yet-recorded item to one contact. The
// conversation is opened once per contact; the ledger is written per item so
// a failure partway through a multi-part message leaves correctly-partial
// idempotency state.
func (d *Dispatcher) dispatchContact(
	ctx, actionCtx context.Context,
	ctrl *runControl,
	surface console.Surface,
	contact *domain.Contact,
) (contactOutcome, error) {
	task := ctrl.task

	ordered := domain.OrderContentItems(task.ContentItems)
	pending := make([]domain.ContentItem, 0, len(ordered))
	for _, item := range ordered {
		sent, err := d.ledger.HasSent(actionCtx, task.UserScope, contact.ID, item)
		if err != nil {
			return contactFailed, fmt.Errorf("ledger lookup failed for contact %s: %w", contact.ID, err)
		}
		if !sent {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		d.logger.Info("Contact already satisfied; skipping",
			"task_id", task.ID, "contact", contact.DisplayName)
		deliveriesTotal.WithLabelValues("all", "skipped").Inc()
		return contactSkipped, nil
	}

	keyword := domain.SearchKeyword(contact.DisplayName)
	found, err := surface.LocateContact(actionCtx, keyword)
	if err != nil {
		d.logger.Error("Contact search errored", "task_id", task.ID,
			"contact", contact.DisplayName, "keyword", keyword, "error", err)
		return contactFailed, nil
	}
	if !found {
		d.logger.Warn("Contact not found on console", "task_id", task.ID,
			"contact", contact.DisplayName, "keyword", keyword)
		return contactFailed, nil
	}

	anyFailed := false
	for j, item := range pending {
		// Forbidden-window suppression, re-evaluated before every send so a
		// run that straddles a window pauses mid-stream on its own.
		if wait := d.planner.ForbiddenWait(task, d.now()); wait > 0 {
			d.logger.Info("Inside forbidden window; suppressing sends",
				"task_id", task.ID, "wait", wait)
			if err := d.sleep(ctx, wait); err != nil {
				return contactFailed, err
			}
		}
		if j > 0 {
			if err := d.sleep(ctx, d.planner.Jitter(d.cfg.InterItemDelay)); err != nil {
				return contactFailed, err
			}
		}

		if err := surface.Deliver(actionCtx, item); err != nil {
			// One item failing does not abort the contact; the remaining item
			// types are still attempted.
			d.logger.Error("Delivery failed", "task_id", task.ID,
				"contact", contact.DisplayName, "content_type", item.Type(), "error", err)
			deliveriesTotal.WithLabelValues(string(item.Type()), "failed").Inc()
			anyFailed = true
			continue
		}
		deliveriesTotal.WithLabelValues(string(item.Type()), "success").Inc()

		// Ledger write happens immediately per item, not once per contact.
		if err := d.ledger.Record(actionCtx, task.UserScope, contact.ID, contact.DisplayName, item, task.ID); err != nil {
			return contactFailed, fmt.Errorf("failed to record delivery for contact %s: %w", contact.ID, err)
		}
	}

	if anyFailed {
		return contactFailed, nil
	}
	return contactSucceeded, nil
}

// enumerateWork builds the fixed contact enumeration: accounts in selected
// order, each account's selected contacts in stored order.
func (d *Dispatcher) enumerateWork(ctx context.Context, task *domain.OutreachTask) ([]contactWork, error) {
	selected := make(map[string]bool, len(task.SelectedContactIDs))
	for _, id := range task.SelectedContactIDs {
		selected[id] = true
	}

	var works []contactWork
	for _, accountName := range task.SelectedAccountNames {
		contacts, err := d.contacts.ListByAccount(ctx, task.UserScope, accountName)
		if err != nil {
			return nil, fmt.Errorf("failed to list contacts for account %q: %w", accountName, err)
		}
		for _, c := range contacts {
			if selected[c.ID] {
				works = append(works, contactWork{accountName: accountName, contact: c})
			}
		}
	}
	return works, nil
}

// requestedState returns the externally-requested terminal state, if any.
func (d *Dispatcher) requestedState(ctrl *runControl) domain.RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ctrl.request
}
