// Package domain contains the tenant directory model and resolution contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/storelane/storelane/pkg/tenantctx"
)

// Tenant is an independent store account, the unit of data isolation.
// Rows are created by platform onboarding; this core only reads them.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex"`
	Name      string       `gorm:"type:text;not null"`
	Active    bool         `gorm:"not null;default:true"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

var (
	ErrNoSlug   = errors.New("no_slug_provided")
	ErrNotFound = errors.New("tenant_not_found")
	ErrInactive = errors.New("tenant_inactive")
)

// Directory maps slugs to tenant records.
type Directory interface {
	BySlug(ctx context.Context, slug string) (*Tenant, error)
	ByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
}

// Resolver turns a raw request slug into a request-scoped tenant identity.
type Resolver interface {
	Resolve(ctx context.Context, rawSlug string) (tenantctx.Tenant, error)
}
