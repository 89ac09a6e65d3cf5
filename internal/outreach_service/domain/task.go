package domain

import (
	"fmt"
	"time"
)

// RunState is the lifecycle state of an outreach task.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStatePaused    RunState = "paused"
	RunStateStopped   RunState = "stopped"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// ForbiddenTimeRange is a [start, end) time-of-day window during which no
// delivery may happen. Ranges may wrap midnight (start > end).
type ForbiddenTimeRange struct {
	StartMinute int `json:"start_minute"` // minutes since midnight, 0..1439
	EndMinute   int `json:"end_minute"`
}

// ParseForbiddenRange parses "HH:MM"-"HH:MM" clock strings into a range.
func ParseForbiddenRange(start, end string) (ForbiddenTimeRange, error) {
	s, err := parseClockMinute(start)
	if err != nil {
		return ForbiddenTimeRange{}, fmt.Errorf("invalid start time %q: %w", start, err)
	}
	e, err := parseClockMinute(end)
	if err != nil {
		return ForbiddenTimeRange{}, fmt.Errorf("invalid end time %q: %w", end, err)
	}
	return ForbiddenTimeRange{StartMinute: s, EndMinute: e}, nil
}

func parseClockMinute(s string) (int, error) {
	// time.Parse rejects trailing garbage and out-of-range values outright,
	// which Sscanf-style parsing would let through.
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t's time of day falls inside the range.
func (r ForbiddenTimeRange) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	if r.StartMinute == r.EndMinute {
		return false
	}
	if r.StartMinute < r.EndMinute {
		return minute >= r.StartMinute && minute < r.EndMinute
	}
	// Wraps midnight, e.g. 23:00-08:00.
	return minute >= r.StartMinute || minute < r.EndMinute
}

// UntilEnd returns the duration from t to the range's end boundary, assuming
// t is inside the range.
func (r ForbiddenTimeRange) UntilEnd(t time.Time) time.Duration {
	end := time.Date(t.Year(), t.Month(), t.Day(), r.EndMinute/60, r.EndMinute%60, 0, 0, t.Location())
	if !end.After(t) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(t)
}

// OutreachTask is one submitted outreach run. Parameters are retained in
// memory across a pause; resume replays the full contact loop and relies on
// the delivery-record idempotency check instead of a positional cursor.
type OutreachTask struct {
	ID                   string               `json:"id"`
	UserScope            string               `json:"user_scope"`
	ContentItems         []ContentItem        `json:"-"`
	TargetCompletionDays int                  `json:"target_completion_days"`
	ForbiddenRanges      []ForbiddenTimeRange `json:"forbidden_ranges"`
	SelectedAccountNames []string             `json:"selected_account_names"`
	SelectedContactIDs   []string             `json:"selected_contact_ids"`
	RunState             RunState             `json:"run_state"`
	CreatedAt            time.Time            `json:"created_at"`
}

// InForbiddenWindow returns the matched range for t, if any.
func (t *OutreachTask) InForbiddenWindow(now time.Time) (ForbiddenTimeRange, bool) {
	for _, r := range t.ForbiddenRanges {
		if r.Contains(now) {
			return r, true
		}
	}
	return ForbiddenTimeRange{}, false
}
