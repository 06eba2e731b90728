package schedule

import (
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
)

// SafetyMinimum is the closest to now any computed next run may land.
const SafetyMinimum = time.Second

// maxBackoffExponent caps the failure backoff multiplier at 2^5 = 32x.
const maxBackoffExponent = 5

// Governor computes the next run time of an endpoint from its baseline
// schedule, AI hints, failure backoff, pause state, and clamp bounds.
// It is pure: all time comes in through now, all cron evaluation through
// the injected Evaluator.
//
// Priority order: pause > AI one-shot (competing with baseline) > AI
// interval (bypasses backoff) > baseline with backoff. The chosen interval
// is clamped to the endpoint's min/max bounds and the tier floor, and the
// result never lands closer than SafetyMinimum after now.
type Governor struct {
	cron   Evaluator
	floors map[domain.Tier]time.Duration
}

// NewGovernor builds a governor. floors may be nil, in which case the
// built-in tier limits apply.
func NewGovernor(cron Evaluator, floors map[domain.Tier]time.Duration) *Governor {
	return &Governor{cron: cron, floors: floors}
}

// NextRun returns when the endpoint should run next. The caller passes the
// endpoint as it should be considered: on run completion, LastRunAt holds
// the started-at of the run that just finished and now is the completion
// time, so a run that outlasted its own interval reschedules from
// completion instead of overlapping the next one.
func (g *Governor) NextRun(e *domain.Endpoint, tier domain.Tier, now time.Time) time.Time {
	if e.Paused(now) {
		return *e.PausedUntil
	}

	ref := now
	if e.LastRunAt != nil && e.LastRunAt.After(now) {
		ref = *e.LastRunAt
	}

	var next time.Time
	switch {
	case e.HintActive(now) && e.AIHintNextRunAt != nil:
		// One-shot probe competes with the baseline: whichever is earlier.
		next = g.baselineNext(e, ref, now)
		if e.AIHintNextRunAt.Before(next) {
			next = *e.AIHintNextRunAt
		}
		next = g.clampTime(e, tier, ref, now, next)
	case e.HintActive(now) && e.AIHintIntervalMs != nil:
		interval := time.Duration(*e.AIHintIntervalMs) * time.Millisecond
		next = g.clampInterval(e, tier, ref, interval)
	default:
		next = g.clampTime(e, tier, ref, now, g.baselineNext(e, ref, now))
	}

	if floor := now.Add(SafetyMinimum); next.Before(floor) {
		next = floor
	}
	return next
}

// baselineNext resolves the baseline schedule with failure backoff applied.
func (g *Governor) baselineNext(e *domain.Endpoint, ref, now time.Time) time.Time {
	if e.BaselineIntervalMs != nil {
		interval := time.Duration(*e.BaselineIntervalMs) * time.Millisecond
		return ref.Add(g.backoff(e.FailureCount, interval))
	}

	if e.CronExpr != nil {
		next, err := g.cron.Next(*e.CronExpr, ref)
		if err != nil {
			// Expression was validated on create; this should never happen.
			return now.Add(time.Hour)
		}
		if e.FailureCount > 0 {
			interval := next.Sub(ref)
			return ref.Add(g.backoff(e.FailureCount, interval))
		}
		return next
	}

	// No schedule at all — also unreachable past creation validation.
	return now.Add(time.Hour)
}

func (g *Governor) backoff(failureCount int, interval time.Duration) time.Duration {
	if failureCount <= 0 {
		return interval
	}
	exp := failureCount
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	return interval * time.Duration(1<<exp)
}

// clampTime rebases a candidate time as ref + clamped(candidate − ref).
func (g *Governor) clampTime(e *domain.Endpoint, tier domain.Tier, ref, now, candidate time.Time) time.Time {
	base := ref
	if candidate.Before(base) {
		// Past candidates degrade to the minimum interval from now.
		base = now
		candidate = now
	}
	return g.clampInterval(e, tier, base, candidate.Sub(base))
}

// clampInterval applies endpoint min/max bounds and the tier floor to the
// interval, then lands it relative to ref.
func (g *Governor) clampInterval(e *domain.Endpoint, tier domain.Tier, ref time.Time, interval time.Duration) time.Time {
	min := g.floorFor(tier)
	if e.MinIntervalMs != nil {
		if m := time.Duration(*e.MinIntervalMs) * time.Millisecond; m > min {
			min = m
		}
	}
	if e.MaxIntervalMs != nil {
		if m := time.Duration(*e.MaxIntervalMs) * time.Millisecond; interval > m {
			interval = m
		}
	}
	if interval < min {
		interval = min
	}
	return ref.Add(interval)
}

func (g *Governor) floorFor(tier domain.Tier) time.Duration {
	if g.floors != nil {
		if d, ok := g.floors[tier]; ok {
			return d
		}
	}
	return time.Duration(domain.LimitsFor(tier).MinIntervalMs) * time.Millisecond
}
