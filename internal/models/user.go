package models

import (
	"time"

	"gorm.io/datatypes"
)

// User mirrors an account issued by the external auth provider.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AuthID string `gorm:"type:text;not null;uniqueIndex"` // Externally-issued auth identifier.

	Phone string `gorm:"type:text;index"` // Phone number in E.164 form.
	Email string `gorm:"type:text;index"` // Email address.
	Name  string `gorm:"type:text"`       // Display name.

	Profile datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Free-form profile payload.

	TargetBand float64 `gorm:"type:decimal(3,1);not null;default:0"` // Target IELTS band score.

	Active bool `gorm:"not null;default:true"` // Whether the user can use the service.

	Subscriptions []Subscription `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Related subscriptions.
	Payments      []Payment      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Related payments.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
