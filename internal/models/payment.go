package models

import "time"

// PaymentStatus represents the ledger state of a payment attempt.
type PaymentStatus int

// PaymentStatus constants define payment lifecycle states.
const (
	// PaymentStatusPending marks a payment awaiting gateway confirmation.
	PaymentStatusPending PaymentStatus = 1
	// PaymentStatusCompleted marks a performed payment.
	PaymentStatusCompleted PaymentStatus = 2
	// PaymentStatusFailed marks a payment cancelled before completion.
	PaymentStatusFailed PaymentStatus = 3
	// PaymentStatusRefunded marks a payment cancelled after completion.
	PaymentStatusRefunded PaymentStatus = 4
)

// Payme transaction states as reported on the gateway wire.
const (
	// PaymeStateCreated is a created, not yet performed transaction.
	PaymeStateCreated = 1
	// PaymeStatePerformed is a completed transaction.
	PaymeStatePerformed = 2
	// PaymeStateCancelled is a transaction cancelled before perform.
	PaymeStateCancelled = -1
	// PaymeStateCancelledAfterPerform is a transaction cancelled after perform.
	PaymeStateCancelledAfterPerform = -2
)

// Payment records one payment attempt against a subscription plan.
// PaymeTransactionID is the gateway's idempotency key; the unique index
// on it is what turns duplicate callback delivery into a well-defined
// replay instead of a double credit.
type Payment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Related user ID.
	User   User   `gorm:"foreignKey:UserID"` // Related user record.

	PlanID uint64 `gorm:"not null;index"`    // Plan being purchased.
	Plan   Plan   `gorm:"foreignKey:PlanID"` // Related plan record.

	SubscriptionID *uint64       `gorm:"index"`                     // Subscription funded by this payment.
	Subscription   *Subscription `gorm:"foreignKey:SubscriptionID"` // Related subscription record.

	OrderID            string  `gorm:"type:varchar(64);not null;uniqueIndex"` // Locally generated order reference.
	PaymeTransactionID *string `gorm:"type:varchar(64);uniqueIndex"`          // Gateway transaction id, set on CreateTransaction.

	AmountUZS   int64 `gorm:"not null"` // Amount in som.
	AmountTiyin int64 `gorm:"not null"` // Amount in tiyin (1 som = 100 tiyin).

	Status PaymentStatus `gorm:"not null;default:1;index"` // Ledger state.
	State  int           `gorm:"not null;default:0"`       // Payme wire state.
	Reason *int          ``                                // Payme cancellation reason code.

	CreateTimeMs  int64 `gorm:"not null;default:0"` // Gateway create time, Unix milliseconds.
	PerformTimeMs int64 `gorm:"not null;default:0"` // Gateway perform time, Unix milliseconds.
	CancelTimeMs  int64 `gorm:"not null;default:0"` // Gateway cancel time, Unix milliseconds.

	CompletedAt *time.Time `` // Local completion timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}
