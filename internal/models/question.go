package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question is one speaking prompt from the question bank.
type Question struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Part  int    `gorm:"not null;index"`             // IELTS speaking part (1-3).
	Topic string `gorm:"type:varchar(255);not null"` // Topic grouping.
	Text  string `gorm:"type:text;not null"`         // Prompt text.

	CueCard    datatypes.JSON `gorm:"type:jsonb"`       // Part 2 cue card bullet points.
	FollowUps  datatypes.JSON `gorm:"type:jsonb"`       // Part 3 follow-up prompts.
	Difficulty string         `gorm:"type:varchar(32)"` // easy, medium, hard.

	IsEnabled bool `gorm:"not null;default:true"` // Whether the question is served.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
