package models

import "time"

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus int

// SubscriptionStatus constants define subscription lifecycle states.
const (
	// SubscriptionStatusActive marks a subscription in good standing.
	SubscriptionStatusActive SubscriptionStatus = 1
	// SubscriptionStatusCancelled marks a subscription ended by the user or a refund.
	SubscriptionStatusCancelled SubscriptionStatus = 2
	// SubscriptionStatusExpired marks a subscription past its end date.
	SubscriptionStatusExpired SubscriptionStatus = 3
	// SubscriptionStatusPaused marks a temporarily suspended subscription.
	SubscriptionStatusPaused SubscriptionStatus = 4
)

// Subscription links a user to a plan instance for a billing period.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Related user ID.
	User   User   `gorm:"foreignKey:UserID"` // Related user record.

	PlanID uint64 `gorm:"not null;index"`    // Related plan ID.
	Plan   Plan   `gorm:"foreignKey:PlanID"` // Related plan record.

	Status SubscriptionStatus `gorm:"not null;default:1;index"` // Current lifecycle state.

	StartDate       time.Time  `gorm:"not null"` // Period start.
	EndDate         *time.Time ``               // Period end, nil for lifetime plans.
	NextBillingDate *time.Time ``               // Next renewal date.

	CancelAtPeriodEnd  bool       `gorm:"not null;default:false"` // Scheduled cancellation flag.
	CancelledAt        *time.Time ``                              // Cancellation timestamp.
	CancellationReason string     `gorm:"type:text"`              // User-supplied cancellation reason.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
