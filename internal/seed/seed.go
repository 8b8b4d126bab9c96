// Package seed bootstraps a demo tenant so a fresh local install is usable
// without an external onboarding flow.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	catalogdomain "github.com/storelane/storelane/internal/catalog/domain"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"gorm.io/gorm"
)

const (
	demoTenantName = "Demo Store"
)

// EnsureDemoTenant seeds a demo tenant with a small catalog. It is idempotent
// and safe to run on every startup.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, created, err := ensureTenantTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return seedCatalogTx(ctx, tx, node, tenant.ID)
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*tenantdomain.Tenant, bool, error) {
	demoSlug := slug.Make(demoTenantName)

	var existing tenantdomain.Tenant
	err := tx.WithContext(ctx).Where("slug = ?", demoSlug).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	tenant := tenantdomain.Tenant{
		ID:        node.Generate(),
		Slug:      demoSlug,
		Name:      demoTenantName,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, false, err
	}
	return &tenant, true, nil
}

func seedCatalogTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	now := time.Now().UTC()
	items := []catalogdomain.Item{
		{
			ID:         node.Generate(),
			TenantID:   tenantID,
			Title:      "Espresso",
			UnitPrice:  350,
			Taxable:    true,
			VatPercent: 10,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:            node.Generate(),
			TenantID:      tenantID,
			Title:         "Coffee Beans 1kg",
			UnitPrice:     2200,
			Taxable:       true,
			VatPercent:    10,
			TrackStock:    true,
			StockQuantity: 40,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:        node.Generate(),
			TenantID:  tenantID,
			Title:     "Gift Wrapping",
			UnitPrice: 150,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	for i := range items {
		if err := tx.WithContext(ctx).Create(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
