// Package repository is the single data-access wrapper for tenant-owned rows.
//
// Every read is filtered by the tenant id passed at the call site and every
// write is checked against the row's own tenant id, so a missing tenant filter
// is a compile-time omission rather than a silent cross-tenant leak.
package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/storelane/storelane/pkg/db/option"
	"gorm.io/gorm"
)

// TenantOwned is implemented by every persisted model that belongs to a tenant.
type TenantOwned interface {
	OwnerTenantID() snowflake.ID
}

// Scoped is a tenant-filtered generic store.
type Scoped[T TenantOwned] interface {
	WithTrx(tx *gorm.DB) Scoped[T]
	Find(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, tenantID snowflake.ID, query *T, opts ...option.QueryOption) (*T, error)
	Count(ctx context.Context, tenantID snowflake.ID, query *T) (int64, error)
	Create(ctx context.Context, tenantID snowflake.ID, resource *T) error
	BatchCreate(ctx context.Context, tenantID snowflake.ID, resources []*T) error
}
