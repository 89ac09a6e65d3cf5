package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// HarvestConfig holds the harvester tunables.
type HarvestConfig struct {
	ObserveWindow time.Duration
	ScrollDelta   int
	SettleDelay   time.Duration
	StableRounds  int
	MaxIterations int
	WarnRatio     float64
}

// HarvestStats summarizes one account's harvest.
type HarvestStats struct {
	Collected        int
	ExpectedTotal    int
	ScrollIterations int
	Elapsed          time.Duration
	Strategy         string // network | scroll
	Completeness     float64
}

// Harvester extracts the complete, deduplicated contact set for one managed
// account from the console's virtualized contact list. The fast path observes
// the contact-list network response the console loads anyway; the fallback
// replays scrolling until the rendered set stabilizes.
type Harvester struct {
	cfg    HarvestConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewHarvester creates a harvester with the given tunables.
func NewHarvester(cfg HarvestConfig, logger *slog.Logger) *Harvester {
	return &Harvester{
		cfg:    cfg,
		logger: logger.With("service", "harvester"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// HarvestAccount harvests the contact set of the account the session is
// currently scoped to. Under-collection is reported through the stats, never
// as an error: partial results are still persisted and usable. onProgress, if
// non-nil, is invoked as the accumulator grows.
func (h *Harvester) HarvestAccount(
	ctx context.Context,
	surface console.Surface,
	userScope, accountName string,
	onProgress func(collected, expected, scrolls int),
) ([]*domain.Contact, HarvestStats, error) {
	start := h.now()

	raws, strategy, scrolls, err := h.collect(ctx, surface)
	if err != nil {
		return nil, HarvestStats{}, err
	}

	contacts := h.normalize(raws, userScope, accountName)

	expected, cerr := surface.ReadSummaryCounter(ctx)
	if cerr != nil {
		h.logger.WarnContext(ctx, "Summary counter unreadable; completeness unknown", "account", accountName, "error", cerr)
		expected = 0
	}
	completeness := 1.0
	if expected > 0 {
		completeness = float64(len(contacts)) / float64(expected)
	}

	stats := HarvestStats{
		Collected:        len(contacts),
		ExpectedTotal:    expected,
		ScrollIterations: scrolls,
		Elapsed:          h.now().Sub(start),
		Strategy:         strategy,
		Completeness:     completeness,
	}

	contactsHarvestedTotal.WithLabelValues(strategy).Add(float64(len(contacts)))
	harvestCompleteness.Observe(completeness)
	if strategy == "scroll" {
		harvestScrollIterations.Observe(float64(scrolls))
	}

	if expected > 0 && completeness < h.cfg.WarnRatio {
		h.logger.WarnContext(ctx, "Harvest under-collected",
			"account", accountName, "collected", len(contacts), "expected", expected,
			"completeness", fmt.Sprintf("%.2f", completeness))
	} else {
		h.logger.InfoContext(ctx, "Harvest complete",
			"account", accountName, "collected", len(contacts), "expected", expected,
			"strategy", strategy, "scroll_iterations", scrolls)
	}

	if onProgress != nil {
		onProgress(len(contacts), expected, scrolls)
	}
	return contacts, stats, nil
}

// collect runs the fast path and falls back to scroll replay.
func (h *Harvester) collect(ctx context.Context, surface console.Surface) ([]console.RawContact, string, int, error) {
	raws, err := h.observeWhileOpening(ctx, surface)
	if err != nil {
		return nil, "", 0, err
	}
	if len(raws) > 0 {
		h.logger.InfoContext(ctx, "Contact list captured from network response", "count", len(raws))
		return dedupRaw(raws), "network", 0, nil
	}

	h.logger.InfoContext(ctx, "No contact-list response observed; falling back to scroll replay")
	raws, scrolls, err := h.scrollReplay(ctx, surface)
	if err != nil {
		return nil, "", scrolls, err
	}
	return raws, "scroll", scrolls, nil
}

// observeWhileOpening races a bounded network observation against the UI
// action that triggers the console's own contact-list fetch. Whichever
// resolves first wins; an empty observation just means the fallback runs.
func (h *Harvester) observeWhileOpening(ctx context.Context, surface console.Surface) ([]console.RawContact, error) {
	var payload []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := surface.ObserveNetwork(gctx, func(url string, body []byte) bool {
			_, ok := console.ExtractContacts(body)
			return ok
		}, h.cfg.ObserveWindow)
		if err != nil {
			return fmt.Errorf("network observation failed: %w", err)
		}
		payload = body
		return nil
	})
	g.Go(func() error {
		if err := surface.OpenContactList(gctx); err != nil {
			return fmt.Errorf("failed to open contact list: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if payload == nil {
		return nil, nil
	}
	raws, ok := console.ExtractContacts(payload)
	if !ok {
		return nil, nil
	}
	return raws, nil
}

// scrollReplay scrolls the virtualized list until the accumulated set is
// stable, then verifies with a second pass from the top: fast scrolling can
// make the virtual renderer skip rows silently, and the only way to catch
// that is to walk the list again.
func (h *Harvester) scrollReplay(ctx context.Context, surface console.Surface) ([]console.RawContact, int, error) {
	seen := make(map[string]struct{})
	var ordered []console.RawContact
	totalScrolls := 0

	merge := func() {
		visible, err := surface.ReadVisibleContacts(ctx)
		if err != nil {
			h.logger.WarnContext(ctx, "Failed to read visible contacts; continuing", "error", err)
			return
		}
		for _, rc := range visible {
			key := rc.DisplayName + "\x1f" + rc.AvatarRef
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ordered = append(ordered, rc)
		}
	}

	forwardPass := func() error {
		stableFor := 0
		for iter := 0; iter < h.cfg.MaxIterations; iter++ {
			before := len(ordered)
			if err := surface.ScrollListBy(ctx, h.cfg.ScrollDelta); err != nil {
				return fmt.Errorf("scroll failed: %w", err)
			}
			totalScrolls++
			if err := h.sleep(ctx, h.cfg.SettleDelay); err != nil {
				return err
			}
			merge()
			if len(ordered) == before {
				stableFor++
				if stableFor >= h.cfg.StableRounds {
					return nil
				}
			} else {
				stableFor = 0
			}
		}
		h.logger.WarnContext(ctx, "Scroll replay hit iteration cap; keeping partial result",
			"collected", len(ordered), "cap", h.cfg.MaxIterations)
		return nil
	}

	merge() // rows rendered before any scrolling
	if err := forwardPass(); err != nil {
		return ordered, totalScrolls, err
	}

	// Verification pass.
	if err := surface.ScrollListToTop(ctx); err != nil {
		h.logger.WarnContext(ctx, "Failed to reset scroll for verification pass", "error", err)
		return ordered, totalScrolls, nil
	}
	if err := h.sleep(ctx, h.cfg.SettleDelay); err != nil {
		return ordered, totalScrolls, err
	}
	beforeVerify := len(ordered)
	if err := forwardPass(); err != nil {
		return ordered, totalScrolls, err
	}
	if recovered := len(ordered) - beforeVerify; recovered > 0 {
		h.logger.InfoContext(ctx, "Verification pass recovered skipped contacts", "recovered", recovered)
	}

	return ordered, totalScrolls, nil
}

func (h *Harvester) normalize(raws []console.RawContact, userScope, accountName string) []*domain.Contact {
	now := h.now().UTC()
	contacts := make([]*domain.Contact, 0, len(raws))
	for _, rc := range raws {
		contacts = append(contacts, &domain.Contact{
			ID:                uuid.NewString(),
			UserScope:         userScope,
			DisplayName:       rc.DisplayName,
			RemarkName:        rc.RemarkName,
			AvatarRef:         rc.AvatarRef,
			OwningAccountName: accountName,
			CreatedAt:         now,
		})
	}
	return contacts
}

// dedupRaw keeps the first occurrence per (displayName, avatarRef). Duplicate
// display names with distinct avatars are legitimate distinct contacts.
func dedupRaw(raws []console.RawContact) []console.RawContact {
	seen := make(map[string]struct{}, len(raws))
	out := raws[:0]
	for _, rc := range raws {
		key := rc.DisplayName + "\x1f" + rc.AvatarRef
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rc)
	}
	return out
}
