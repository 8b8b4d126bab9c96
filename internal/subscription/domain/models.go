// Package domain contains the subscription record, lifecycle states and the
// pure status derivation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the closed set of subscription lifecycle states.
type Status string

const (
	StatusTrial     Status = "TRIAL"
	StatusActive    Status = "ACTIVE"
	StatusGrace     Status = "GRACE"
	StatusExpired   Status = "EXPIRED"
	StatusSuspended Status = "SUSPENDED"
)

// Subscription is the single authoritative billing record for a tenant.
// The current lifecycle state is never stored; it is derived from the
// persisted dates and the suspension flag at read time.
type Subscription struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	TenantID          snowflake.ID      `gorm:"not null;uniqueIndex"`
	PlanID            string            `gorm:"type:text;not null"`
	Suspended         bool              `gorm:"not null;default:false"`
	TrialEnd          *time.Time        `gorm:""`
	EndDate           *time.Time        `gorm:""`
	LastPaymentAmount int64             `gorm:"not null;default:0"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// OwnerTenantID implements repository.TenantOwned.
func (s Subscription) OwnerTenantID() snowflake.ID { return s.TenantID }
