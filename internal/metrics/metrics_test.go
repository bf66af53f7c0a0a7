package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pacotes-bot/internal/packages"
	"pacotes-bot/internal/sheets"
)

func TestCollector_CountsLifecycle(t *testing.T) {
	active := 3
	c := Collector{Active: func() int { return active }}

	created := testutil.ToFloat64(PackagesCreatedTotal.WithLabelValues("5"))
	renewals := testutil.ToFloat64(RenewalsTotal)
	failures := testutil.ToFloat64(RenewalFailuresTotal)
	expirations := testutil.ToFloat64(ExpirationsTotal)

	c.PackageCreated(packages.Subscription{PlanDays: 5})
	c.PackageRenewed(packages.Subscription{}, packages.HistoryEntry{})
	c.RenewalFailed(packages.Subscription{}, errors.New("x"))
	active = 2
	c.PackageExpired(packages.Subscription{})

	assert.Equal(t, created+1, testutil.ToFloat64(PackagesCreatedTotal.WithLabelValues("5")))
	assert.Equal(t, renewals+1, testutil.ToFloat64(RenewalsTotal))
	assert.Equal(t, failures+1, testutil.ToFloat64(RenewalFailuresTotal))
	assert.Equal(t, expirations+1, testutil.ToFloat64(ExpirationsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(PackagesActive))
}

func TestCollector_SubmissionOutcomes(t *testing.T) {
	c := Collector{}
	before := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("order", "duplicate"))

	c.SubmissionFinished(sheets.KindOrder, "REF", sheets.OutcomeDuplicate, 120*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(SubmissionsTotal.WithLabelValues("order", "duplicate")))
}

func TestRecordTicks(t *testing.T) {
	ran := testutil.ToFloat64(TicksTotal.WithLabelValues("ran"))
	skipped := testutil.ToFloat64(TicksTotal.WithLabelValues("skipped_overlap"))

	RecordTick(time.Second)
	RecordSkippedTick()

	assert.Equal(t, ran+1, testutil.ToFloat64(TicksTotal.WithLabelValues("ran")))
	assert.Equal(t, skipped+1, testutil.ToFloat64(TicksTotal.WithLabelValues("skipped_overlap")))
}
