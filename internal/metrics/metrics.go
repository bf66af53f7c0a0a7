package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pacotes-bot/internal/packages"
	"pacotes-bot/internal/sheets"
)

var (
	PackagesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacotes_active",
			Help: "Number of live packages after the last change",
		},
	)

	PackagesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacotes_created_total",
			Help: "Total number of packages activated by plan length",
		},
		[]string{"plan_days"},
	)

	RenewalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacotes_renewals_total",
			Help: "Total number of committed renewals",
		},
	)

	RenewalFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacotes_renewal_failures_total",
			Help: "Total number of renewals that failed and were left for the next tick",
		},
	)

	ExpirationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacotes_expirations_total",
			Help: "Total number of packages removed on expiry",
		},
	)

	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pacotes_cancellations_total",
			Help: "Total number of packages cancelled by an operator",
		},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacotes_submissions_total",
			Help: "Spreadsheet submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SubmissionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pacotes_submission_duration_seconds",
			Help:    "Latency of spreadsheet submissions",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)

	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacotes_ticks_total",
			Help: "Renewal poll ticks by result (ran, skipped_overlap)",
		},
		[]string{"result"},
	)

	TickDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacotes_tick_duration_seconds",
			Help:    "Duration of one renewal poll tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

// Collector feeds store events and submission outcomes into the metrics.
type Collector struct {
	// Active returns the current number of live packages.
	Active func() int
}

func (c Collector) refreshActive() {
	if c.Active != nil {
		PackagesActive.Set(float64(c.Active()))
	}
}

func (c Collector) PackageCreated(sub packages.Subscription) {
	PackagesCreatedTotal.WithLabelValues(planLabel(sub.PlanDays)).Inc()
	c.refreshActive()
}

func (c Collector) PackageRenewed(packages.Subscription, packages.HistoryEntry) {
	RenewalsTotal.Inc()
}

func (c Collector) RenewalFailed(packages.Subscription, error) {
	RenewalFailuresTotal.Inc()
}

func (c Collector) PackageExpired(packages.Subscription) {
	ExpirationsTotal.Inc()
	c.refreshActive()
}

func (c Collector) PackageCancelled(packages.Subscription) {
	CancellationsTotal.Inc()
	c.refreshActive()
}

func (c Collector) SubmissionFinished(kind sheets.Kind, reference string, outcome sheets.Outcome, elapsed time.Duration) {
	SubmissionsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
	SubmissionDurationSeconds.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// RecordTick records a completed tick.
func RecordTick(elapsed time.Duration) {
	TicksTotal.WithLabelValues("ran").Inc()
	TickDurationSeconds.Observe(elapsed.Seconds())
}

// RecordSkippedTick records a tick dropped because the previous one was still running.
func RecordSkippedTick() {
	TicksTotal.WithLabelValues("skipped_overlap").Inc()
}

func planLabel(days int) string {
	return strconv.Itoa(days)
}
