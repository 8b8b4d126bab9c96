package domain

import (
	"time"

	"github.com/storelane/storelane/internal/config"
)

// DeriveStatus computes the lifecycle state of a subscription at the given
// instant. It is pure: callers pass the clock so time-based transitions can be
// exercised without touching stored state.
//
// Suspension always wins. A tenant with no subscription row is Expired. A
// lapsed trial has no grace window; grace applies to paid periods only.
func DeriveStatus(sub *Subscription, now time.Time, policy config.SubscriptionPolicy) Status {
	if sub == nil {
		return StatusExpired
	}
	if sub.Suspended {
		return StatusSuspended
	}
	if sub.TrialEnd != nil && now.Before(*sub.TrialEnd) {
		return StatusTrial
	}
	if sub.EndDate != nil {
		if now.Before(*sub.EndDate) {
			return StatusActive
		}
		graceEnd := sub.EndDate.AddDate(0, 0, policy.GraceDays)
		if now.Before(graceEnd) {
			return StatusGrace
		}
	}
	return StatusExpired
}

// GraceEnd returns the end of the grace window, if the subscription has a paid
// period at all.
func GraceEnd(sub *Subscription, policy config.SubscriptionPolicy) *time.Time {
	if sub == nil || sub.EndDate == nil {
		return nil
	}
	end := sub.EndDate.AddDate(0, 0, policy.GraceDays)
	return &end
}

// DaysRemaining reports whole days until the current state lapses: trial end
// while trialing, paid period end while active, grace end while in grace.
// Zero for expired or suspended subscriptions.
func DaysRemaining(sub *Subscription, now time.Time, policy config.SubscriptionPolicy) int {
	var until *time.Time
	switch DeriveStatus(sub, now, policy) {
	case StatusTrial:
		until = sub.TrialEnd
	case StatusActive:
		until = sub.EndDate
	case StatusGrace:
		until = GraceEnd(sub, policy)
	default:
		return 0
	}
	if until == nil {
		return 0
	}
	remaining := int(until.Sub(now).Hours() / 24)
	if remaining < 0 {
		return 0
	}
	return remaining
}
