package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronMetricsRecordsRunsAndLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveRun("ledger-reconciliation", 250*time.Millisecond, nil, finished)
	m.ObserveRun("ledger-reconciliation", time.Second, errors.New("db down"), finished.Add(time.Minute))
	m.IncSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", "success"); err != nil || got != 1 {
		t.Fatalf("success runs = %v (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cron_job_runs_total", "outcome", "failure"); err != nil || got != 1 {
		t.Fatalf("failed runs = %v (%v)", got, err)
	}
	// a failure must not move the freshness gauge
	if got, err := fetchGaugeValue(mfs, "cron_job_last_success_timestamp_seconds", "job", "ledger-reconciliation"); err != nil || got != float64(finished.Unix()) {
		t.Fatalf("last success = %v (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "ledger-reconciliation"); err != nil || got < 1.25 {
		t.Fatalf("duration sum = %v (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "cron_cycles_skipped_total", "", ""); err != nil || got != 1 {
		t.Fatalf("skipped = %v (%v)", got, err)
	}
}

func TestCronMetricsNilSafe(t *testing.T) {
	var m *CronMetrics
	m.ObserveRun("job", time.Second, nil, time.Now())
	m.IncSkipped()
	NewCronMetrics(nil).ObserveRun("", 0, errors.New("x"), time.Now())
}
