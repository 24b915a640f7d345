package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan tier identifiers. The catalog is seeded at migration time.
const (
	// PlanTierFree is the default tier for new users.
	PlanTierFree = "free"
	// PlanTierBasic is the entry-level paid tier.
	PlanTierBasic = "basic"
	// PlanTierStandard is the mid paid tier.
	PlanTierStandard = "standard"
	// PlanTierPremium is the unlimited paid tier.
	PlanTierPremium = "premium"
	// PlanTierLifetime is a one-time purchase with no expiry.
	PlanTierLifetime = "lifetime"
)

// Plan represents a subscription plan catalog entry.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Tier string `gorm:"type:varchar(32);not null;uniqueIndex"` // Tier identifier.
	Name string `gorm:"type:varchar(255);not null"`            // Display name.

	PriceUZS    int64  `gorm:"not null;default:0"` // Monthly price in UZS (som).
	Description string `gorm:"type:text"`          // Plan description.

	MonthlyTestLimit int `gorm:"not null;default:0"` // Tests per month, 0 = unlimited.
	DurationDays     int `gorm:"not null;default:0"` // Subscription length, 0 = never expires.

	Features datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Feature description list.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the plan is purchasable.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Unlimited reports whether the plan has no monthly test cap.
func (p *Plan) Unlimited() bool { return p.MonthlyTestLimit <= 0 }
