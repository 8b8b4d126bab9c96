package migration

import (
	catalogdomain "github.com/storelane/storelane/internal/catalog/domain"
	"github.com/storelane/storelane/internal/config"
	invoicedomain "github.com/storelane/storelane/internal/invoice/domain"
	"github.com/storelane/storelane/internal/seed"
	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	tenantdomain "github.com/storelane/storelane/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// The versioned SQL migrations target postgres. Other dialects
			// exist for local development only and take the schema straight
			// from the models.
			err := conn.AutoMigrate(
				&tenantdomain.Tenant{},
				&subscriptiondomain.Subscription{},
				&catalogdomain.Item{},
				&invoicedomain.Invoice{},
				&invoicedomain.InvoiceItem{},
			)
			if err != nil {
				return err
			}
		}

		if cfg.SeedDemoTenant {
			return seed.EnsureDemoTenant(conn)
		}
		return nil
	}),
)
