// Package domain holds the catalog item model the ledger sells against.
// Catalog editing itself is a thin CRUD surface owned elsewhere; the ledger
// only reads items and adjusts stock.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Item is a sellable catalog entry. Price and tax fields are frozen onto
// invoice lines at sale time; editing an item never rewrites history.
type Item struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      snowflake.ID `gorm:"not null;index"`
	Title         string       `gorm:"type:text;not null"`
	UnitPrice     int64        `gorm:"not null"`
	Taxable       bool         `gorm:"not null;default:false"`
	VatPercent    float64      `gorm:"not null;default:0"`
	TrackStock    bool         `gorm:"not null;default:false"`
	StockQuantity int64        `gorm:"not null;default:0"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Item) TableName() string { return "catalog_items" }

// OwnerTenantID implements repository.TenantOwned.
func (i Item) OwnerTenantID() snowflake.ID { return i.TenantID }

var ErrNotFound = errors.New("catalog_item_not_found")
