package models

import (
	"time"
)

type Renewal struct {
	ID                uint   `gorm:"primaryKey"`
	EntryID           string `gorm:"size:64;uniqueIndex;not null"`
	SubscriptionID    string `gorm:"size:255;index;not null"`
	Phone             string `gorm:"size:32;index"`
	GroupID           string `gorm:"size:128"`
	OriginalReference string `gorm:"size:128;index"`
	DerivedReference  string `gorm:"size:140"`
	Day               int
	DaysRemaining     int
	Amount            int
	Price             float64
	RenewedAt         time.Time
	CreatedAt         time.Time
}
