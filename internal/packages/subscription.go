package packages

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// RenewalSpacing is the gap between two renewals of the same package.
	RenewalSpacing = 24*time.Hour - 2*time.Hour

	// DefaultRenewalAmount is the data amount (MB) submitted on every renewal.
	DefaultRenewalAmount = 100

	// HistoryCap bounds the persisted renewal history.
	HistoryCap = 1000

	// DuplicateScanWindow is how many of the most recent history entries are
	// checked when a new reference comes in.
	DuplicateScanWindow = 100
)

// Status is the lifecycle state of a live subscription. Expired packages are
// removed from the store instead of being kept with a terminal status.
type Status string

const StatusActive Status = "active"

// validPlans is the plan catalogue, in days.
var validPlans = map[int]bool{3: true, 5: true, 15: true, 30: true}

// Subscription is one customer's multi-day data package.
type Subscription struct {
	ID                string    `json:"id"`
	Reference         string    `json:"referencia"`
	Phone             string    `json:"numero"`
	GroupID           string    `json:"grupo_id"`
	PlanDays          int       `json:"dias_total"`
	DaysRemaining     int       `json:"dias_restantes"`
	InitialDataAmount int       `json:"megas_iniciais"`
	InitialPrice      float64   `json:"valor_inicial"`
	ManualMode        bool      `json:"modo_manual"`
	StartedAt         time.Time `json:"data_inicio"`
	ExpiresAt         time.Time `json:"data_expiracao"`
	NextRenewalAt     time.Time `json:"proxima_renovacao"`
	LastRenewalAt     time.Time `json:"ultima_renovacao,omitempty"`
	RenewalCount      int       `json:"renovacoes"`
	Status            Status    `json:"status"`
}

// Depleted reports whether no renewals are left.
func (s Subscription) Depleted() bool {
	return s.DaysRemaining <= 0
}

// DueForRenewal reports whether the renew transition fires at now.
func (s Subscription) DueForRenewal(now time.Time) bool {
	return !now.Before(s.NextRenewalAt) && s.DaysRemaining > 0
}

// Expired reports whether the expire transition fires at now.
func (s Subscription) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NextDerivedReference is the reference the next renewal submits under. The
// initial purchase counts as day 1, so the first renewal is "<ref>D2".
func (s Subscription) NextDerivedReference() string {
	return fmt.Sprintf("%sD%d", s.Reference, s.RenewalCount+2)
}

// HistoryEntry is an immutable record of a completed renewal.
type HistoryEntry struct {
	ID                string    `json:"id"`
	SubscriptionID    string    `json:"pacote_id"`
	Phone             string    `json:"numero"`
	GroupID           string    `json:"grupo_id"`
	OriginalReference string    `json:"referencia_original"`
	DerivedReference  string    `json:"referencia_renovacao"`
	Day               int       `json:"dia"`
	DaysRemaining     int       `json:"dias_restantes"`
	Amount            int       `json:"megas"`
	Price             float64   `json:"valor"`
	RenewedAt         time.Time `json:"data"`
}

// CreateRequest carries everything the order flow knows about a new package.
type CreateRequest struct {
	Reference         string  `json:"referencia"`
	Phone             string  `json:"numero"`
	GroupID           string  `json:"grupo_id"`
	PlanKind          string  `json:"tipo_pacote"`
	InitialDataAmount int     `json:"megas_iniciais"`
	InitialPrice      float64 `json:"valor_inicial"`
	ManualMode        bool    `json:"modo_manual"`
}

// ParsePlanKind turns a plan code such as "5", "5d" or "5 dias" into days.
func ParsePlanKind(kind string) (int, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	k = strings.TrimSuffix(k, "dias")
	k = strings.TrimSuffix(k, "dia")
	k = strings.TrimSuffix(k, "d")
	k = strings.TrimSpace(k)

	days, err := strconv.Atoi(k)
	if err != nil || !validPlans[days] {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlanKind, kind)
	}
	return days, nil
}

// SubscriptionID builds the map key used both in memory and on disk.
func SubscriptionID(phone, reference string) string {
	return phone + "_" + reference
}

// Validity summarises one package for a "how long do I still have" query.
type Validity struct {
	Reference     string    `json:"referencia"`
	GroupID       string    `json:"grupo_id"`
	PlanDays      int       `json:"dias_total"`
	DaysRemaining int       `json:"dias_restantes"`
	RenewalCount  int       `json:"renovacoes"`
	ExpiresAt     time.Time `json:"data_expiracao"`
	NextRenewalAt time.Time `json:"proxima_renovacao,omitempty"`
	HoursToExpiry float64   `json:"horas_restantes"`
}

// Stats aggregates the live store for operators.
type Stats struct {
	Active        int            `json:"ativos"`
	Depleted      int            `json:"esgotados"`
	ByPlan        map[int]int    `json:"por_plano"`
	ByGroup       map[string]int `json:"por_grupo"`
	HistorySize   int            `json:"historico"`
	Created       int            `json:"criados"`
	Renewed       int            `json:"renovados"`
	Expired       int            `json:"expirados"`
	Cancelled     int            `json:"cancelados"`
	NextRenewalAt *time.Time     `json:"proxima_renovacao,omitempty"`
}

// TickResult counts what one poll pass did.
type TickResult struct {
	Renewed int `json:"renovados"`
	Expired int `json:"expirados"`
	Failed  int `json:"falhas"`
	Skipped int `json:"ignorados"`
}

// Changed reports whether the pass mutated the store.
func (r TickResult) Changed() bool {
	return r.Renewed > 0 || r.Expired > 0
}
