package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Transition is an administrative lifecycle operation.
type Transition string

const (
	TransitionStartTrial Transition = "start_trial"
	TransitionActivate   Transition = "activate"
	TransitionRenew      Transition = "renew"
)

// transitionAllowedFrom is the central transition table: which derived states
// each operation may run from. Suspend/Reactivate are flag toggles reachable
// from any state and are deliberately absent.
var transitionAllowedFrom = map[Transition][]Status{
	TransitionStartTrial: {StatusExpired},
	TransitionActivate:   {StatusTrial, StatusExpired},
	TransitionRenew:      {StatusActive, StatusGrace, StatusExpired},
}

// TransitionAllowed reports whether op may be applied to a subscription whose
// derived status is current.
func TransitionAllowed(op Transition, current Status) bool {
	for _, allowed := range transitionAllowedFrom[op] {
		if current == allowed {
			return true
		}
	}
	return false
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrNotFound          = errors.New("subscription_not_found")
	ErrAlreadySubscribed = errors.New("already_subscribed")
	ErrInvalidTransition = errors.New("invalid_lifecycle_transition")
	ErrInvalidPlan       = errors.New("invalid_plan")
	ErrInvalidAmount     = errors.New("invalid_payment_amount")
	ErrInvalidMonths     = errors.New("invalid_renewal_months")
)

// StatusInfo is the derived view of a tenant's subscription at a point in time.
type StatusInfo struct {
	Status        Status     `json:"status"`
	PlanID        string     `json:"plan_id,omitempty"`
	TrialEnd      *time.Time `json:"trial_end,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	GraceEnd      *time.Time `json:"grace_end,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	InGrace       bool       `json:"in_grace"`
}

// ExpiringSubscription is a platform-level row for the expiry report.
type ExpiringSubscription struct {
	TenantID   snowflake.ID `json:"tenant_id"`
	TenantSlug string       `json:"tenant_slug"`
	PlanID     string       `json:"plan_id"`
	Status     Status       `json:"status"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

// Service owns the subscription lifecycle for all tenants. Transition calls
// are atomic with respect to the tenant's subscription row; none is retried.
type Service interface {
	StartTrial(ctx context.Context, tenantID snowflake.ID, planID string) (Subscription, error)
	Activate(ctx context.Context, tenantID snowflake.ID, planID string, paymentAmount int64) (Subscription, error)
	Renew(ctx context.Context, tenantID snowflake.ID, paymentAmount int64, months int) (Subscription, error)
	Suspend(ctx context.Context, tenantID snowflake.ID) error
	Reactivate(ctx context.Context, tenantID snowflake.ID) error
	CurrentStatus(ctx context.Context, tenantID snowflake.ID) (StatusInfo, error)
	ListExpiring(ctx context.Context, withinDays int) ([]ExpiringSubscription, error)
}
