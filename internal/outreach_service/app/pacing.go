package app

import (
	"math/rand"
	"time"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// PacingConfig holds the throughput model tunables.
type PacingConfig struct {
	ActiveHoursPerDay int
	MinInterval       time.Duration
	JitterFraction    float64 // e.g. 0.2 for ±20%
}

// PacingPlan is the computed schedule for one dispatch run.
type PacingPlan struct {
	BaseInterval             time.Duration
	PerChannelInterval       time.Duration
	EstimatedDailyThroughput int
}

// PacingPlanner spreads a run's deliveries over the target completion window
// and evaluates forbidden-time suppression.
type PacingPlanner struct {
	cfg  PacingConfig
	rand func() float64 // uniform [0,1); swappable in tests
}

// NewPacingPlanner creates a planner with the given tunables.
func NewPacingPlanner(cfg PacingConfig) *PacingPlanner {
	if cfg.ActiveHoursPerDay <= 0 {
		cfg.ActiveHoursPerDay = 12
	}
	return &PacingPlanner{cfg: cfg, rand: rand.Float64}
}

// Plan computes the per-contact send interval. The productive window is
// ActiveHoursPerDay per day; the floor guards against unrealistically fast
// pacing when the contact list is small.
func (p *PacingPlanner) Plan(totalContacts, channelCount, targetCompletionDays int) PacingPlan {
	if totalContacts <= 0 {
		totalContacts = 1
	}
	if channelCount <= 0 {
		channelCount = 1
	}
	if targetCompletionDays <= 0 {
		targetCompletionDays = 1
	}

	totalSeconds := float64(targetCompletionDays) * float64(p.cfg.ActiveHoursPerDay) * 3600
	base := time.Duration(totalSeconds / float64(totalContacts) * float64(time.Second)).Truncate(time.Second)
	if base < p.cfg.MinInterval {
		base = p.cfg.MinInterval
	}

	daily := int(float64(p.cfg.ActiveHoursPerDay) * 3600 / base.Seconds())
	return PacingPlan{
		BaseInterval:             base,
		PerChannelInterval:       base * time.Duration(channelCount),
		EstimatedDailyThroughput: daily,
	}
}

// Jitter returns d randomized by ±JitterFraction so pacing never produces a
// perfectly periodic signature.
func (p *PacingPlanner) Jitter(d time.Duration) time.Duration {
	if p.cfg.JitterFraction <= 0 {
		return d
	}
	// Uniform in [1-f, 1+f).
	factor := 1 + p.cfg.JitterFraction*(2*p.rand()-1)
	return time.Duration(float64(d) * factor)
}

// ForbiddenWait reports how long a send at now must be suppressed. Zero means
// now is outside every configured window. The check is cheap and re-evaluated
// before every send so a run that straddles a window pauses mid-stream.
func (p *PacingPlanner) ForbiddenWait(task *domain.OutreachTask, now time.Time) time.Duration {
	r, inside := task.InForbiddenWindow(now)
	if !inside {
		return 0
	}
	return r.UntilEnd(now)
}
