package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/storelane/storelane/internal/clock"
	"github.com/storelane/storelane/internal/config"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	"github.com/storelane/storelane/internal/subscription/repository"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, fake *clock.FakeClock) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&subscriptiondomain.Subscription{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	policy, err := config.NewPolicyHolder()
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Policy: policy,
		Repo:   repository.Provide(),
	})
	return svc.(*Service), db, node
}

func seedTenant(t *testing.T, db *gorm.DB, node *snowflake.Node, slug string) snowflake.ID {
	t.Helper()
	tenant := tenantdomain.Tenant{
		ID:     node.Generate(),
		Slug:   slug,
		Name:   slug,
		Active: true,
	}
	require.NoError(t, db.Create(&tenant).Error)
	return tenant.ID
}

func TestStartTrial_NewTenant(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	sub, err := svc.StartTrial(context.Background(), tenantID, "starter")
	require.NoError(t, err)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, start.AddDate(0, 0, 14), sub.TrialEnd.UTC())
	assert.Nil(t, sub.EndDate)

	info, err := svc.CurrentStatus(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusTrial, info.Status)
}

func TestStartTrial_AlreadySubscribed(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.StartTrial(context.Background(), tenantID, "starter")
	require.NoError(t, err)

	_, err = svc.StartTrial(context.Background(), tenantID, "starter")
	assert.ErrorIs(t, err, subscriptiondomain.ErrAlreadySubscribed)
}

func TestStartTrial_AllowedAgainAfterExpiry(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.StartTrial(context.Background(), tenantID, "starter")
	require.NoError(t, err)

	fake.Advance(15 * 24 * time.Hour)

	info, err := svc.CurrentStatus(context.Background(), tenantID)
	require.NoError(t, err)
	require.Equal(t, subscriptiondomain.StatusExpired, info.Status)

	_, err = svc.StartTrial(context.Background(), tenantID, "starter")
	assert.NoError(t, err)
}

func TestActivate_FromTrial(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.StartTrial(context.Background(), tenantID, "starter")
	require.NoError(t, err)

	sub, err := svc.Activate(context.Background(), tenantID, "growth", 2900)
	require.NoError(t, err)
	assert.Nil(t, sub.TrialEnd, "activation ends the trial")
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, start.AddDate(0, 1, 0), sub.EndDate.UTC())
	assert.Equal(t, int64(2900), sub.LastPaymentAmount)
	assert.Equal(t, "growth", sub.PlanID)
}

func TestActivate_RejectedWhileActive(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.Activate(context.Background(), tenantID, "growth", 2900)
	require.NoError(t, err)

	_, err = svc.Activate(context.Background(), tenantID, "growth", 2900)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestRenew_ExtendsFromCurrentEndDate(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.Activate(context.Background(), tenantID, "growth", 2900)
	require.NoError(t, err)

	// Renew mid-period: the extension stacks on the existing end date.
	fake.Advance(10 * 24 * time.Hour)
	sub, err := svc.Renew(context.Background(), tenantID, 2900, 1)
	require.NoError(t, err)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, start.AddDate(0, 2, 0), sub.EndDate.UTC())
}

func TestRenew_FromExpiredStartsAtNow(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.Activate(context.Background(), tenantID, "growth", 2900)
	require.NoError(t, err)

	// Jump far past end date and grace.
	fake.Set(start.AddDate(0, 3, 0))
	now := fake.Now()

	sub, err := svc.Renew(context.Background(), tenantID, 2900, 2)
	require.NoError(t, err)
	require.NotNil(t, sub.EndDate)
	assert.Equal(t, now.AddDate(0, 2, 0), sub.EndDate.UTC())
}

func TestRenew_WithoutSubscription(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.Renew(context.Background(), tenantID, 2900, 1)
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
}

func TestSuspendAndReactivate(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.Activate(context.Background(), tenantID, "growth", 2900)
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(context.Background(), tenantID))

	info, err := svc.CurrentStatus(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusSuspended, info.Status)
	assert.Equal(t, 0, info.DaysRemaining)

	require.NoError(t, svc.Reactivate(context.Background(), tenantID))

	info, err = svc.CurrentStatus(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, info.Status)
}

func TestGracePeriodAfterEndDate(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, db, node := newTestService(t, fake)
	tenantID := seedTenant(t, db, node, "acme")

	_, err := svc.Activate(context.Background(), tenantID, "growth", 2900)
	require.NoError(t, err)

	fake.Set(start.AddDate(0, 1, 0).Add(time.Hour))

	info, err := svc.CurrentStatus(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusGrace, info.Status)
	assert.True(t, info.InGrace)
	require.NotNil(t, info.GraceEnd)

	fake.Advance(8 * 24 * time.Hour)

	info, err = svc.CurrentStatus(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusExpired, info.Status)
}

func TestListExpiring(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(start)
	svc, db, node := newTestService(t, fake)

	soonID := seedTenant(t, db, node, "soon")
	laterID := seedTenant(t, db, node, "later")

	_, err := svc.Activate(context.Background(), soonID, "growth", 2900)
	require.NoError(t, err)
	_, err = svc.Activate(context.Background(), laterID, "growth", 2900)
	require.NoError(t, err)

	// Move to three days before the shared end date; both expire within a
	// week, only "soon" within two days after renewing "later" out.
	fake.Set(start.AddDate(0, 1, 0).Add(-3 * 24 * time.Hour))
	_, err = svc.Renew(context.Background(), laterID, 2900, 1)
	require.NoError(t, err)

	rows, err := svc.ListExpiring(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "soon", rows[0].TenantSlug)
	assert.Equal(t, subscriptiondomain.StatusActive, rows[0].Status)
}
