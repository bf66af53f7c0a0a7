package models

import (
	"time"
)

// Submission is one POST to the spreadsheet endpoints, successful or not.
type Submission struct {
	ID         uint   `gorm:"primaryKey"`
	Kind       string `gorm:"size:16;index;not null"`
	Reference  string `gorm:"size:140;index;not null"`
	Outcome    string `gorm:"size:16;not null"`
	DurationMS int64
	CreatedAt  time.Time
}
