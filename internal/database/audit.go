package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pacotes-bot/internal/models"
	"pacotes-bot/internal/packages"
	"pacotes-bot/internal/sheets"
)

const auditTimeout = 5 * time.Second

var packageUpsert = clause.OnConflict{
	Columns: []clause.Column{{Name: "subscription_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"group_id", "days_remaining", "renewal_count", "status",
		"expires_at", "next_renewal_at", "last_renewal_at", "closed_at", "updated_at",
	}),
}

// AuditLog mirrors package lifecycle events and spreadsheet submissions into
// PostgreSQL. Write failures are logged and never reach the caller.
type AuditLog struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db, now: time.Now}
}

func (a *AuditLog) session() (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	return a.db.WithContext(ctx), cancel
}

func (a *AuditLog) PackageCreated(sub packages.Subscription) {
	a.savePackage(packageRow(sub, models.PackageStatusActive, nil), "created")
}

func (a *AuditLog) PackageRenewed(sub packages.Subscription, entry packages.HistoryEntry) {
	db, cancel := a.session()
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(packageUpsert).Create(ptr(packageRow(sub, models.PackageStatusActive, nil))).Error; err != nil {
			return err
		}
		row := renewalRow(entry)
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	})
	if err != nil {
		log.Warn().Err(err).Str("subscription_id", sub.ID).Str("reference", entry.DerivedReference).Msg("Failed to audit renewal")
	}
}

// RenewalFailed is a no-op: the failed submission itself is already recorded
// through SubmissionFinished.
func (a *AuditLog) RenewalFailed(packages.Subscription, error) {}

func (a *AuditLog) PackageExpired(sub packages.Subscription) {
	closed := a.now()
	a.savePackage(packageRow(sub, models.PackageStatusExpired, &closed), "expired")
}

func (a *AuditLog) PackageCancelled(sub packages.Subscription) {
	closed := a.now()
	a.savePackage(packageRow(sub, models.PackageStatusCancelled, &closed), "cancelled")
}

func (a *AuditLog) SubmissionFinished(kind sheets.Kind, reference string, outcome sheets.Outcome, elapsed time.Duration) {
	db, cancel := a.session()
	defer cancel()

	row := models.Submission{
		Kind:       string(kind),
		Reference:  reference,
		Outcome:    string(outcome),
		DurationMS: elapsed.Milliseconds(),
	}
	if err := db.Create(&row).Error; err != nil {
		log.Warn().Err(err).Str("reference", reference).Msg("Failed to audit submission")
	}
}

func (a *AuditLog) savePackage(row models.Package, event string) {
	db, cancel := a.session()
	defer cancel()

	if err := db.Clauses(packageUpsert).Create(&row).Error; err != nil {
		log.Warn().Err(err).Str("subscription_id", row.SubscriptionID).Str("event", event).Msg("Failed to audit package")
	}
}

func packageRow(sub packages.Subscription, status string, closedAt *time.Time) models.Package {
	row := models.Package{
		SubscriptionID: sub.ID,
		Reference:      sub.Reference,
		Phone:          sub.Phone,
		GroupID:        sub.GroupID,
		PlanDays:       sub.PlanDays,
		DaysRemaining:  sub.DaysRemaining,
		RenewalCount:   sub.RenewalCount,
		InitialAmount:  sub.InitialDataAmount,
		InitialPrice:   sub.InitialPrice,
		ManualMode:     sub.ManualMode,
		Status:         status,
		StartedAt:      sub.StartedAt,
		ExpiresAt:      sub.ExpiresAt,
		NextRenewalAt:  sub.NextRenewalAt,
		ClosedAt:       closedAt,
	}
	if !sub.LastRenewalAt.IsZero() {
		last := sub.LastRenewalAt
		row.LastRenewalAt = &last
	}
	return row
}

func renewalRow(entry packages.HistoryEntry) models.Renewal {
	return models.Renewal{
		EntryID:           entry.ID,
		SubscriptionID:    entry.SubscriptionID,
		Phone:             entry.Phone,
		GroupID:           entry.GroupID,
		OriginalReference: entry.OriginalReference,
		DerivedReference:  entry.DerivedReference,
		Day:               entry.Day,
		DaysRemaining:     entry.DaysRemaining,
		Amount:            entry.Amount,
		Price:             entry.Price,
		RenewedAt:         entry.RenewedAt,
	}
}

func ptr[T any](v T) *T { return &v }
