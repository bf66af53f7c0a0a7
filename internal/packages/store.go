package packages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pacotes-bot/internal/utils"
)

// Submitter registers orders and payments with the downstream ledgers.
type Submitter interface {
	SubmitOrder(ctx context.Context, reference string, amount int, phone, groupID string) error
	SubmitPayment(ctx context.Context, reference string, price float64, phone, groupID string) error
}

// StoreConfig wires a Store. Submitter and Persister are required.
type StoreConfig struct {
	Submitter     Submitter
	Persister     Persister
	Pricer        Pricer
	Observer      Observer
	RenewalAmount int
	CountryCode   string
	Now           func() time.Time
}

// Store owns every package and every state transition.
type Store struct {
	mu       sync.Mutex
	saveMu   sync.Mutex
	subs     map[string]*Subscription
	order    []string
	history  []HistoryEntry
	reserved map[string]struct{}

	created   int
	renewed   int
	expired   int
	cancelled int

	submitter     Submitter
	persister     Persister
	pricer        Pricer
	observer      Observer
	renewalAmount int
	countryCode   string
	now           func() time.Time
}

var errSuperseded = errors.New("package changed during renewal")

// NewStore builds a store and loads whatever the persister has.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("%w: submitter is required", ErrInvalidRequest)
	}
	if cfg.Persister == nil {
		return nil, fmt.Errorf("%w: persister is required", ErrInvalidRequest)
	}
	if cfg.Pricer == nil {
		cfg.Pricer = StaticPricer{}
	}
	if cfg.Observer == nil {
		cfg.Observer = Observers(nil)
	}
	if cfg.RenewalAmount <= 0 {
		cfg.RenewalAmount = DefaultRenewalAmount
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		subs:          make(map[string]*Subscription),
		reserved:      make(map[string]struct{}),
		submitter:     cfg.Submitter,
		persister:     cfg.Persister,
		pricer:        cfg.Pricer,
		observer:      cfg.Observer,
		renewalAmount: cfg.RenewalAmount,
		countryCode:   cfg.CountryCode,
		now:           cfg.Now,
	}

	snap, err := cfg.Persister.Load()
	if err != nil {
		return nil, err
	}
	loaded := make([]Subscription, 0, len(snap.Active))
	for id, sub := range snap.Active {
		if sub.ID == "" {
			sub.ID = id
		}
		if sub.Status == "" {
			sub.Status = StatusActive
		}
		loaded = append(loaded, sub)
	}
	sortByStart(loaded)
	for i := range loaded {
		sub := loaded[i]
		s.subs[sub.ID] = &sub
		s.order = append(s.order, sub.ID)
	}
	s.history = snap.History

	log.Info().
		Int("active", len(s.subs)).
		Int("history", len(s.history)).
		Msg("Loaded package state")

	return s, nil
}

func sortByStart(subs []Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].StartedAt.Equal(subs[j].StartedAt) {
			return subs[i].ID < subs[j].ID
		}
		return subs[i].StartedAt.Before(subs[j].StartedAt)
	})
}

// Create registers a new package for a processed payment proof. Unless the
// request is in manual mode, the initial order and payment are submitted
// before the package becomes active; a failed submission leaves the store as
// it was.
func (s *Store) Create(ctx context.Context, req CreateRequest) (Subscription, error) {
	reference := strings.TrimSpace(req.Reference)
	phone := utils.CanonicalPhone(req.Phone, s.countryCode)
	if reference == "" || phone == "" {
		return Subscription{}, fmt.Errorf("%w: reference and phone are required", ErrInvalidRequest)
	}
	planDays, err := ParsePlanKind(req.PlanKind)
	if err != nil {
		return Subscription{}, err
	}

	s.mu.Lock()
	if s.referenceInUseLocked(reference) {
		s.mu.Unlock()
		log.Warn().Str("reference", reference).Str("phone", phone).Msg("Rejected package with reused reference")
		return Subscription{}, fmt.Errorf("%w: %s", ErrDuplicateReference, reference)
	}
	s.reserved[reference] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.reserved, reference)
		s.mu.Unlock()
	}()

	if !req.ManualMode {
		if err := s.submitter.SubmitOrder(ctx, reference, req.InitialDataAmount, phone, req.GroupID); err != nil {
			return Subscription{}, fmt.Errorf("%w: initial order %s: %w", ErrSubmissionFailure, reference, err)
		}
		if err := s.submitter.SubmitPayment(ctx, reference, req.InitialPrice, phone, req.GroupID); err != nil {
			return Subscription{}, fmt.Errorf("%w: initial payment %s: %w", ErrSubmissionFailure, reference, err)
		}
	}

	now := s.now()
	sub := Subscription{
		ID:                SubscriptionID(phone, reference),
		Reference:         reference,
		Phone:             phone,
		GroupID:           req.GroupID,
		PlanDays:          planDays,
		DaysRemaining:     planDays,
		InitialDataAmount: req.InitialDataAmount,
		InitialPrice:      req.InitialPrice,
		ManualMode:        req.ManualMode,
		StartedAt:         now,
		ExpiresAt:         now.Add(time.Duration(planDays) * 24 * time.Hour),
		NextRenewalAt:     now.Add(RenewalSpacing),
		Status:            StatusActive,
	}

	s.mu.Lock()
	stored := sub
	s.subs[sub.ID] = &stored
	s.order = append(s.order, sub.ID)
	s.created++
	s.mu.Unlock()

	log.Info().
		Str("subscription_id", sub.ID).
		Str("group_id", sub.GroupID).
		Int("plan_days", planDays).
		Bool("manual", req.ManualMode).
		Time("expires_at", sub.ExpiresAt).
		Msg("Package activated")

	s.persist()
	s.observer.PackageCreated(sub)
	return sub, nil
}

// referenceInUseLocked scans active packages, in-flight creations and the
// most recent history entries.
func (s *Store) referenceInUseLocked(reference string) bool {
	if _, ok := s.reserved[reference]; ok {
		return true
	}
	for _, sub := range s.subs {
		if sub.Reference == reference {
			return true
		}
	}
	start := len(s.history) - DuplicateScanWindow
	if start < 0 {
		start = 0
	}
	for _, entry := range s.history[start:] {
		if entry.OriginalReference == reference || entry.DerivedReference == reference {
			return true
		}
	}
	return false
}

// Tick runs one poll pass: expire what is past its expiry, then renew what is
// due. Submissions happen outside the lock; a failed renewal leaves the
// package untouched so the next tick retries it.
func (s *Store) Tick(ctx context.Context) TickResult {
	now := s.now()
	var result TickResult

	s.mu.Lock()
	var expired, due []Subscription
	var handles []*Subscription
	kept := s.order[:0:0]
	for _, id := range s.order {
		sub, ok := s.subs[id]
		if !ok {
			continue
		}
		if sub.Expired(now) {
			expired = append(expired, *sub)
			delete(s.subs, id)
			continue
		}
		kept = append(kept, id)
		if sub.DueForRenewal(now) {
			due = append(due, *sub)
			handles = append(handles, sub)
		}
	}
	s.order = kept
	s.expired += len(expired)
	s.mu.Unlock()

	result.Expired = len(expired)
	for _, sub := range expired {
		log.Info().
			Str("subscription_id", sub.ID).
			Int("renewals", sub.RenewalCount).
			Int("days_remaining", sub.DaysRemaining).
			Msg("Package expired")
		s.observer.PackageExpired(sub)
	}

	for i, sub := range due {
		if ctx.Err() != nil {
			result.Skipped += len(due) - i
			log.Warn().Err(ctx.Err()).Int("pending", len(due)-i).Msg("Tick interrupted, remaining renewals deferred")
			break
		}

		updated, entry, err := s.renew(ctx, sub, handles[i], now)
		switch {
		case errors.Is(err, errSuperseded):
			result.Skipped++
			log.Info().Str("subscription_id", sub.ID).Msg("Package changed while renewing, nothing committed")
		case err != nil:
			result.Failed++
			log.Error().Err(err).
				Str("subscription_id", sub.ID).
				Str("reference", sub.NextDerivedReference()).
				Msg("Renewal failed, will retry on next tick")
			s.observer.RenewalFailed(sub, err)
		default:
			result.Renewed++
			log.Info().
				Str("subscription_id", updated.ID).
				Str("reference", entry.DerivedReference).
				Int("days_remaining", updated.DaysRemaining).
				Msg("Package renewed")
			s.observer.PackageRenewed(updated, entry)
		}
	}

	if result.Changed() {
		s.persist()
	}
	return result
}

// renew submits the next derived order and payment for sub, then commits the
// renewal onto handle. A package that was cancelled, even if a new one was
// created under the same id since, or that was renewed by someone else while
// the submissions ran is left alone.
func (s *Store) renew(ctx context.Context, sub Subscription, handle *Subscription, now time.Time) (Subscription, HistoryEntry, error) {
	derived := sub.NextDerivedReference()
	price := s.pricer.RenewalPrice(sub.GroupID)

	if err := s.submitter.SubmitOrder(ctx, derived, s.renewalAmount, sub.Phone, sub.GroupID); err != nil {
		return sub, HistoryEntry{}, fmt.Errorf("%w: renewal order %s: %w", ErrSubmissionFailure, derived, err)
	}
	if err := s.submitter.SubmitPayment(ctx, derived, price, sub.Phone, sub.GroupID); err != nil {
		return sub, HistoryEntry{}, fmt.Errorf("%w: renewal payment %s: %w", ErrSubmissionFailure, derived, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subs[sub.ID]
	if !ok || cur != handle || cur.RenewalCount != sub.RenewalCount {
		return sub, HistoryEntry{}, errSuperseded
	}

	cur.DaysRemaining--
	cur.RenewalCount++
	cur.LastRenewalAt = now
	if cur.DaysRemaining > 0 {
		cur.NextRenewalAt = now.Add(RenewalSpacing)
	}

	entry := HistoryEntry{
		ID:                uuid.NewString(),
		SubscriptionID:    cur.ID,
		Phone:             cur.Phone,
		GroupID:           cur.GroupID,
		OriginalReference: cur.Reference,
		DerivedReference:  derived,
		Day:               cur.RenewalCount + 1,
		DaysRemaining:     cur.DaysRemaining,
		Amount:            s.renewalAmount,
		Price:             price,
		RenewedAt:         now,
	}
	s.history = append(s.history, entry)
	if len(s.history) > HistoryCap {
		s.history = append([]HistoryEntry(nil), s.history[len(s.history)-HistoryCap:]...)
	}
	s.renewed++

	return *cur, entry, nil
}

// ListActive returns live packages in creation order, optionally for one group.
func (s *Store) ListActive(groupID string) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Subscription, 0, len(s.order))
	for _, id := range s.order {
		sub := s.subs[id]
		if groupID != "" && sub.GroupID != groupID {
			continue
		}
		out = append(out, *sub)
	}
	return out
}

// Get returns the package with the given id.
func (s *Store) Get(id string) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// FindByPhone returns every live package of a phone number, oldest first.
func (s *Store) FindByPhone(phone string) []Subscription {
	canonical := utils.CanonicalPhone(phone, s.countryCode)
	if canonical == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Subscription
	for _, id := range s.order {
		if sub := s.subs[id]; sub.Phone == canonical {
			out = append(out, *sub)
		}
	}
	return out
}

// Validity reports remaining time for every package of a phone number.
func (s *Store) Validity(phone string) []Validity {
	now := s.now()
	subs := s.FindByPhone(phone)

	out := make([]Validity, 0, len(subs))
	for _, sub := range subs {
		v := Validity{
			Reference:     sub.Reference,
			GroupID:       sub.GroupID,
			PlanDays:      sub.PlanDays,
			DaysRemaining: sub.DaysRemaining,
			RenewalCount:  sub.RenewalCount,
			ExpiresAt:     sub.ExpiresAt,
			HoursToExpiry: sub.ExpiresAt.Sub(now).Hours(),
		}
		if !sub.Depleted() {
			v.NextRenewalAt = sub.NextRenewalAt
		}
		out = append(out, v)
	}
	return out
}

// Cancel removes a package outright.
func (s *Store) Cancel(phone, reference string) (Subscription, error) {
	id := SubscriptionID(utils.CanonicalPhone(phone, s.countryCode), strings.TrimSpace(reference))

	s.mu.Lock()
	sub, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := *sub
	delete(s.subs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.cancelled++
	s.mu.Unlock()

	log.Info().Str("subscription_id", id).Int("days_remaining", removed.DaysRemaining).Msg("Package cancelled")

	s.persist()
	s.observer.PackageCancelled(removed)
	return removed, nil
}

// Stats aggregates the live state and the counters since start.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Active:      len(s.subs),
		ByPlan:      make(map[int]int),
		ByGroup:     make(map[string]int),
		HistorySize: len(s.history),
		Created:     s.created,
		Renewed:     s.renewed,
		Expired:     s.expired,
		Cancelled:   s.cancelled,
	}
	for _, id := range s.order {
		sub := s.subs[id]
		st.ByPlan[sub.PlanDays]++
		st.ByGroup[sub.GroupID]++
		if sub.Depleted() {
			st.Depleted++
			continue
		}
		if st.NextRenewalAt == nil || sub.NextRenewalAt.Before(*st.NextRenewalAt) {
			next := sub.NextRenewalAt
			st.NextRenewalAt = &next
		}
	}
	return st
}

// History returns up to limit of the most recent renewals, oldest first.
// A non-positive limit returns everything retained.
func (s *Store) History(limit int) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	return append([]HistoryEntry(nil), s.history[start:]...)
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Active:  make(map[string]Subscription, len(s.subs)),
		History: append([]HistoryEntry(nil), s.history...),
	}
	for id, sub := range s.subs {
		snap.Active[id] = *sub
	}
	return snap
}

// persist writes the current state. saveMu orders concurrent saves so the
// last write always carries the newest snapshot. Failures are logged; the
// in-memory state stays authoritative and the next mutation retries.
func (s *Store) persist() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.persister.Save(snap); err != nil {
		log.Error().Err(err).Msg("Failed to persist package state")
	}
}
