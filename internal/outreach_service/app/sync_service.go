package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// SyncService runs full contact syncs: it opens a session, walks the managed
// accounts, harvests each one and bulk-replaces its stored contacts. One
// account failing never aborts the sync; the remaining accounts are still
// attempted and the per-account detail carries the failure.
type SyncService struct {
	contacts  domain.ContactRepository
	accounts  domain.ManagedAccountRepository
	harvester *Harvester
	sessions  *SessionManager
	switcher  *AccountSwitchVerifier
	progress  ProgressSink
	guard     *RunGuard
	logger    *slog.Logger
	warnRatio float64
	now       func() time.Time
}

// NewSyncService wires the sync workflow.
func NewSyncService(
	contacts domain.ContactRepository,
	accounts domain.ManagedAccountRepository,
	harvester *Harvester,
	sessions *SessionManager,
	switcher *AccountSwitchVerifier,
	progress ProgressSink,
	guard *RunGuard,
	logger *slog.Logger,
	warnRatio float64,
) *SyncService {
	return &SyncService{
		contacts:  contacts,
		accounts:  accounts,
		harvester: harvester,
		sessions:  sessions,
		switcher:  switcher,
		progress:  progress,
		guard:     guard,
		logger:    logger.With("service", "sync"),
		warnRatio: warnRatio,
		now:       time.Now,
	}
}

// StartSync harvests the given accounts, or every account visible on the
// console when accountNames is empty. It shares the single run slot with the
// dispatcher: a sync cannot start while an outreach task runs and vice versa.
func (s *SyncService) StartSync(ctx context.Context, userScope string, accountNames []string) (*domain.SyncResult, error) {
	if !s.guard.TryAcquire() {
		return nil, domain.ErrTaskAlreadyRunning
	}
	defer s.guard.Release()

	surface, err := s.sessions.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("session open failed: %w", err)
	}
	defer s.sessions.Teardown(ctx, surface)

	if len(accountNames) == 0 {
		accountNames, err = surface.ListAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate console accounts: %w", err)
		}
	}
	if len(accountNames) == 0 {
		return &domain.SyncResult{Success: true}, nil
	}

	result := &domain.SyncResult{Success: true}
	start := s.now()

	for idx, accountName := range accountNames {
		detail := s.syncAccount(ctx, surface, userScope, accountName, idx, len(accountNames), start)
		result.PerAccountDetail = append(result.PerAccountDetail, detail)
		result.Count += detail.Collected
		if detail.Status == "failed" {
			result.Success = false
		}
	}

	s.logger.InfoContext(ctx, "Contact sync finished",
		"accounts", len(accountNames), "total_contacts", result.Count, "success", result.Success)
	return result, nil
}

// syncAccount harvests one account. All failure modes degrade to a detail row
// so the caller's loop continues.
func (s *SyncService) syncAccount(
	ctx context.Context,
	surface console.Surface,
	userScope, accountName string,
	accountIdx, totalAccounts int,
	syncStart time.Time,
) domain.AccountSyncDetail {
	detail := domain.AccountSyncDetail{AccountName: accountName}

	if err := s.switcher.Switch(ctx, surface, accountName); err != nil {
		s.logger.ErrorContext(ctx, "Account switch failed; skipping account",
			"account", accountName, "error", err)
		detail.Status = "failed"
		detail.FailureMessage = err.Error()
		return detail
	}

	onProgress := func(collected, expected, scrolls int) {
		s.progress.PublishHarvestProgress(ctx, userScope, domain.HarvestProgress{
			AccountName:      accountName,
			AccountIndex:     accountIdx,
			TotalAccounts:    totalAccounts,
			CollectedCount:   collected,
			ExpectedTotal:    expected,
			ScrollIterations: scrolls,
			ElapsedMs:        s.now().Sub(syncStart).Milliseconds(),
		})
	}

	contacts, stats, err := s.harvester.HarvestAccount(ctx, surface, userScope, accountName, onProgress)
	if err != nil {
		s.logger.ErrorContext(ctx, "Harvest failed; skipping account",
			"account", accountName, "error", err)
		detail.Status = "failed"
		detail.FailureMessage = err.Error()
		return detail
	}

	if err := s.contacts.ReplaceForAccount(ctx, userScope, accountName, contacts); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist harvested contacts",
			"account", accountName, "error", err)
		detail.Status = "failed"
		detail.FailureMessage = err.Error()
		return detail
	}

	account := &domain.ManagedAccount{
		UserScope:          userScope,
		AccountIndex:       accountIdx,
		DisplayName:        accountName,
		CachedContactCount: len(contacts),
		UpdatedAt:          s.now().UTC(),
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		// The contacts themselves landed; a stale cached count is tolerable.
		s.logger.WarnContext(ctx, "Failed to refresh managed account row",
			"account", accountName, "error", err)
	}

	detail.Collected = stats.Collected
	detail.ExpectedTotal = stats.ExpectedTotal
	detail.Completeness = stats.Completeness
	detail.Status = "ok"
	if stats.ExpectedTotal > 0 && stats.Completeness < s.warnRatio {
		detail.Status = "warning"
	}
	return detail
}
