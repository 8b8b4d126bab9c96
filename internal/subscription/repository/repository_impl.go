package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	"gorm.io/gorm"
)

// Repository persists subscription rows. Writes run inside the caller's
// transaction so each lifecycle transition stays atomic.
type Repository interface {
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error)
	FindByTenantForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error)
	Insert(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error
	Update(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error
	ListEndingBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]ExpiringRow, error)
}

// ExpiringRow joins a subscription nearing its end with its tenant slug.
type ExpiringRow struct {
	TenantID   snowflake.ID
	TenantSlug string
	PlanID     string
	Suspended  bool
	TrialEnd   *time.Time
	EndDate    *time.Time
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, plan_id, suspended, trial_end, end_date,
		        last_payment_amount, created_at, updated_at
		 FROM subscriptions
		 WHERE tenant_id = ?`,
		tenantID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindByTenantForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	query := `SELECT id, tenant_id, plan_id, suspended, trial_end, end_date,
		        last_payment_amount, created_at, updated_at
		 FROM subscriptions
		 WHERE tenant_id = ?`
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var sub subscriptiondomain.Subscription
	err := tx.WithContext(ctx).Raw(query, tenantID).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, tenant_id, plan_id, suspended, trial_end, end_date,
			last_payment_amount, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.TenantID,
		sub.PlanID,
		sub.Suspended,
		sub.TrialEnd,
		sub.EndDate,
		sub.LastPaymentAmount,
		sub.Metadata,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_id = ?, suspended = ?, trial_end = ?, end_date = ?,
		     last_payment_amount = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		sub.PlanID,
		sub.Suspended,
		sub.TrialEnd,
		sub.EndDate,
		sub.LastPaymentAmount,
		sub.UpdatedAt,
		sub.TenantID,
		sub.ID,
	).Error
}

func (r *repo) ListEndingBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]ExpiringRow, error) {
	var rows []ExpiringRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.tenant_id, t.slug AS tenant_slug, s.plan_id, s.suspended,
		        s.trial_end, s.end_date
		 FROM subscriptions s
		 JOIN tenants t ON t.id = s.tenant_id
		 WHERE s.suspended = ?
		   AND ((s.end_date IS NOT NULL AND s.end_date >= ? AND s.end_date < ?)
		     OR (s.end_date IS NULL AND s.trial_end IS NOT NULL AND s.trial_end >= ? AND s.trial_end < ?))
		 ORDER BY COALESCE(s.end_date, s.trial_end)`,
		false,
		from, to,
		from, to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
