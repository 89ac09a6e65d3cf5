package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// SwitchConfig holds the account-switch verification tunables.
type SwitchConfig struct {
	SettleDelay  time.Duration
	PollInterval time.Duration
	PollRounds   int
	Retries      int
}

// AccountSwitchVerifier drives a managed-account context switch and confirms
// the console actually re-rendered for the target account.
type AccountSwitchVerifier struct {
	cfg    SwitchConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewAccountSwitchVerifier creates a verifier with the given tunables.
func NewAccountSwitchVerifier(cfg SwitchConfig, logger *slog.Logger) *AccountSwitchVerifier {
	return &AccountSwitchVerifier{
		cfg:    cfg,
		logger: logger.With("service", "account_switch"),
		sleep:  sleepCtx,
	}
}

// Switch makes accountName the active console context. Success requires both
// the displayed selected-account name to equal the target and the visible
// ungrouped-contact count to change from its pre-click value; the count check
// is the proof the UI re-rendered instead of silently no-op'ing. The full
// click sequence is retried up to the configured cap before the switch is
// declared unverifiable.
func (v *AccountSwitchVerifier) Switch(ctx context.Context, surface console.Surface, accountName string) error {
	var lastErr error
	for attempt := 0; attempt <= v.cfg.Retries; attempt++ {
		if attempt > 0 {
			v.logger.WarnContext(ctx, "Retrying account switch", "account", accountName, "attempt", attempt)
		}
		if err := v.switchOnce(ctx, surface, accountName); err == nil {
			return nil
		} else {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("switch to %q failed after %d attempts: %w (last: %v)",
		accountName, v.cfg.Retries+1, domain.ErrSwitchUnverified, lastErr)
}

func (v *AccountSwitchVerifier) switchOnce(ctx context.Context, surface console.Surface, accountName string) error {
	// Already active counts as verified; clicking again would not change the
	// counter and the re-render check below would never pass.
	if current, err := surface.SelectedAccountName(ctx); err == nil && current == accountName {
		v.logger.DebugContext(ctx, "Account already active", "account", accountName)
		return nil
	}

	preCount, err := surface.UngroupedContactCount(ctx)
	if err != nil {
		// Counter unreadable before the click; fall back to name-only
		// verification with a sentinel that any read count will differ from.
		v.logger.DebugContext(ctx, "Pre-click counter unreadable", "account", accountName, "error", err)
		preCount = -1
	}

	if err := surface.SelectAccount(ctx, accountName); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	if err := v.sleep(ctx, v.cfg.SettleDelay); err != nil {
		return err
	}

	for round := 0; round < v.cfg.PollRounds; round++ {
		name, nameErr := surface.SelectedAccountName(ctx)
		count, countErr := surface.UngroupedContactCount(ctx)
		if nameErr == nil && countErr == nil && name == accountName && count != preCount {
			v.logger.InfoContext(ctx, "Account switch verified", "account", accountName, "ungrouped_count", count)
			return nil
		}
		if err := v.sleep(ctx, v.cfg.PollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("console did not confirm switch within %d polls", v.cfg.PollRounds)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
