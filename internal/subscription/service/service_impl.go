package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/storelane/storelane/internal/clock"
	"github.com/storelane/storelane/internal/config"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	"github.com/storelane/storelane/internal/subscription/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.PolicyHolder
	repo   repository.Repository
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.PolicyHolder
	Repo   repository.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
	}
}

func (s *Service) StartTrial(ctx context.Context, tenantID snowflake.ID, planID string) (subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPlan
	}

	policy := s.policy.Policy()
	now := s.clock.Now().UTC()

	var result subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		current := subscriptiondomain.DeriveStatus(sub, now, policy)
		if !subscriptiondomain.TransitionAllowed(subscriptiondomain.TransitionStartTrial, current) {
			return subscriptiondomain.ErrAlreadySubscribed
		}

		trialEnd := now.AddDate(0, 0, policy.TrialDays)

		if sub == nil {
			created := subscriptiondomain.Subscription{
				ID:        s.genID.Generate(),
				TenantID:  tenantID,
				PlanID:    planID,
				TrialEnd:  &trialEnd,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.repo.Insert(ctx, tx, &created); err != nil {
				return err
			}
			result = created
			return nil
		}

		sub.PlanID = planID
		sub.TrialEnd = &trialEnd
		sub.EndDate = nil
		sub.LastPaymentAmount = 0
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("trial started",
		zap.Int64("tenant_id", int64(tenantID)),
		zap.String("plan_id", planID),
	)
	return result, nil
}

func (s *Service) Activate(ctx context.Context, tenantID snowflake.ID, planID string, paymentAmount int64) (subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPlan
	}
	if paymentAmount < 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}

	policy := s.policy.Policy()
	now := s.clock.Now().UTC()

	var result subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}

		current := subscriptiondomain.DeriveStatus(sub, now, policy)
		if !subscriptiondomain.TransitionAllowed(subscriptiondomain.TransitionActivate, current) {
			return subscriptiondomain.ErrInvalidTransition
		}

		endDate := now.AddDate(0, policy.BillingPeriodMonths, 0)

		if sub == nil {
			created := subscriptiondomain.Subscription{
				ID:                s.genID.Generate(),
				TenantID:          tenantID,
				PlanID:            planID,
				EndDate:           &endDate,
				LastPaymentAmount: paymentAmount,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := s.repo.Insert(ctx, tx, &created); err != nil {
				return err
			}
			result = created
			return nil
		}

		sub.PlanID = planID
		sub.TrialEnd = nil
		sub.EndDate = &endDate
		sub.LastPaymentAmount = paymentAmount
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription activated",
		zap.Int64("tenant_id", int64(tenantID)),
		zap.String("plan_id", planID),
		zap.Int64("payment_amount", paymentAmount),
	)
	return result, nil
}

// Renew extends the paid period. The new end date grows from whichever is
// later, the current end date or now, so already-elapsed grace time is never
// counted twice.
func (s *Service) Renew(ctx context.Context, tenantID snowflake.ID, paymentAmount int64, months int) (subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	if paymentAmount < 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}
	if months <= 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidMonths
	}

	policy := s.policy.Policy()
	now := s.clock.Now().UTC()

	var result subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrNotFound
		}

		current := subscriptiondomain.DeriveStatus(sub, now, policy)
		if !subscriptiondomain.TransitionAllowed(subscriptiondomain.TransitionRenew, current) {
			return subscriptiondomain.ErrInvalidTransition
		}

		base := now
		if sub.EndDate != nil && sub.EndDate.After(now) {
			base = *sub.EndDate
		}
		endDate := base.AddDate(0, months*policy.BillingPeriodMonths, 0)

		sub.TrialEnd = nil
		sub.EndDate = &endDate
		sub.LastPaymentAmount = paymentAmount
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription renewed",
		zap.Int64("tenant_id", int64(tenantID)),
		zap.Int("months", months),
		zap.Int64("payment_amount", paymentAmount),
	)
	return result, nil
}

func (s *Service) Suspend(ctx context.Context, tenantID snowflake.ID) error {
	return s.setSuspended(ctx, tenantID, true)
}

// Reactivate clears the administrative suspension. The resulting state falls
// out of the stored dates at the next derivation.
func (s *Service) Reactivate(ctx context.Context, tenantID snowflake.ID) error {
	return s.setSuspended(ctx, tenantID, false)
}

func (s *Service) setSuspended(ctx context.Context, tenantID snowflake.ID, suspended bool) error {
	if tenantID == 0 {
		return subscriptiondomain.ErrInvalidTenant
	}

	now := s.clock.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByTenantForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrNotFound
		}
		if sub.Suspended == suspended {
			return nil
		}
		sub.Suspended = suspended
		sub.UpdatedAt = now
		return s.repo.Update(ctx, tx, sub)
	})
	if err != nil {
		return err
	}

	s.log.Info("suspension flag changed",
		zap.Int64("tenant_id", int64(tenantID)),
		zap.Bool("suspended", suspended),
	)
	return nil
}

func (s *Service) CurrentStatus(ctx context.Context, tenantID snowflake.ID) (subscriptiondomain.StatusInfo, error) {
	if tenantID == 0 {
		return subscriptiondomain.StatusInfo{}, subscriptiondomain.ErrInvalidTenant
	}

	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return subscriptiondomain.StatusInfo{}, err
	}

	policy := s.policy.Policy()
	now := s.clock.Now().UTC()
	status := subscriptiondomain.DeriveStatus(sub, now, policy)

	info := subscriptiondomain.StatusInfo{
		Status:        status,
		DaysRemaining: subscriptiondomain.DaysRemaining(sub, now, policy),
		InGrace:       status == subscriptiondomain.StatusGrace,
	}
	if sub != nil {
		info.PlanID = sub.PlanID
		info.TrialEnd = sub.TrialEnd
		info.EndDate = sub.EndDate
		info.GraceEnd = subscriptiondomain.GraceEnd(sub, policy)
	}
	return info, nil
}

func (s *Service) ListExpiring(ctx context.Context, withinDays int) ([]subscriptiondomain.ExpiringSubscription, error) {
	if withinDays <= 0 {
		withinDays = 7
	}

	policy := s.policy.Policy()
	now := s.clock.Now().UTC()
	until := now.AddDate(0, 0, withinDays)

	rows, err := s.repo.ListEndingBetween(ctx, s.db, now, until)
	if err != nil {
		return nil, err
	}

	out := make([]subscriptiondomain.ExpiringSubscription, 0, len(rows))
	for _, row := range rows {
		sub := &subscriptiondomain.Subscription{
			TenantID:  row.TenantID,
			PlanID:    row.PlanID,
			Suspended: row.Suspended,
			TrialEnd:  row.TrialEnd,
			EndDate:   row.EndDate,
		}
		expiresAt := row.EndDate
		if expiresAt == nil {
			expiresAt = row.TrialEnd
		}
		if expiresAt == nil {
			continue
		}
		out = append(out, subscriptiondomain.ExpiringSubscription{
			TenantID:   row.TenantID,
			TenantSlug: row.TenantSlug,
			PlanID:     row.PlanID,
			Status:     subscriptiondomain.DeriveStatus(sub, now, policy),
			ExpiresAt:  expiresAt.UTC(),
		})
	}
	return out, nil
}
