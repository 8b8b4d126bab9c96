// Package domain contains the immutable invoice ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Invoice is an immutable historical record of a sale or refund. Amounts are
// minor currency units. Refund invoices carry positive amounts with IsRefund
// set; consumers derive the sign.
//
// Invariants: Total == Subtotal - Discount + VatAmount, and Subtotal is the
// sum of line totals.
type Invoice struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	TenantID          snowflake.ID      `gorm:"not null;uniqueIndex:ux_invoices_tenant_number,priority:1"`
	InvoiceNumber     int64             `gorm:"not null;uniqueIndex:ux_invoices_tenant_number,priority:2"`
	Subtotal          int64             `gorm:"not null"`
	Discount          int64             `gorm:"not null;default:0"`
	VatAmount         int64             `gorm:"not null;default:0"`
	Total             int64             `gorm:"not null"`
	IsRefund          bool              `gorm:"not null;default:false"`
	OriginalInvoiceID *snowflake.ID     `gorm:"index"`
	PaymentMethod     string            `gorm:"type:text;not null"`
	Notes             string            `gorm:"type:text"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// OwnerTenantID implements repository.TenantOwned.
func (i Invoice) OwnerTenantID() snowflake.ID { return i.TenantID }

// InvoiceItem is one frozen line of an invoice. Title, price and tax fields
// are snapshots taken at creation time; later catalog edits never change them.
type InvoiceItem struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	TenantID       snowflake.ID  `gorm:"not null;index"`
	InvoiceID      snowflake.ID  `gorm:"not null;index"`
	CatalogItemID  *snowflake.ID `gorm:"index"`
	OriginalItemID *snowflake.ID `gorm:"index"`
	TitleSnapshot  string        `gorm:"type:text;not null"`
	UnitPrice      int64         `gorm:"not null"`
	Taxable        bool          `gorm:"not null;default:false"`
	VatPercent     float64       `gorm:"not null;default:0"`
	Quantity       int64         `gorm:"not null"`
	LineTotal      int64         `gorm:"not null"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// OwnerTenantID implements repository.TenantOwned.
func (i InvoiceItem) OwnerTenantID() snowflake.ID { return i.TenantID }
