package models

import (
	"time"
)

const (
	PackageStatusActive    = "active"
	PackageStatusExpired   = "expired"
	PackageStatusCancelled = "cancelled"
)

// Package mirrors one data package in PostgreSQL. The JSON state files stay
// authoritative; this row is kept for reporting and survives expiry.
type Package struct {
	ID             uint   `gorm:"primaryKey"`
	SubscriptionID string `gorm:"size:255;uniqueIndex;not null"`
	Reference      string `gorm:"size:128;index;not null"`
	Phone          string `gorm:"size:32;index;not null"`
	GroupID        string `gorm:"size:128;index"`
	PlanDays       int    `gorm:"not null"`
	DaysRemaining  int
	RenewalCount   int
	InitialAmount  int
	InitialPrice   float64
	ManualMode     bool
	Status         string `gorm:"size:20;default:'active'"`
	StartedAt      time.Time
	ExpiresAt      time.Time `gorm:"index"`
	NextRenewalAt  time.Time
	LastRenewalAt  *time.Time
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
