package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveProviderRequest(t *testing.T) {
	before := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("transient_error"))

	ObserveProviderRequest("transient_error", 120*time.Millisecond)
	ObserveProviderRequest("transient_error", 80*time.Millisecond)

	after := testutil.ToFloat64(providerRequestsTotal.WithLabelValues("transient_error"))
	if got := after - before; got != 2 {
		t.Errorf("expected 2 transient_error requests, got %f", got)
	}
	if val := testutil.CollectAndCount(providerRequestSeconds); val <= 0 {
		t.Errorf("expected provider request durations to be observed, got %d", val)
	}
}

func TestIncProviderRetry(t *testing.T) {
	before := testutil.ToFloat64(providerRetriesTotal)
	IncProviderRetry()
	IncProviderRetry()
	IncProviderRetry()
	if got := testutil.ToFloat64(providerRetriesTotal) - before; got != 3 {
		t.Errorf("expected 3 retries recorded, got %f", got)
	}
}

func TestObserveRun(t *testing.T) {
	beforeOK := testutil.ToFloat64(runsTotal.WithLabelValues("succeeded"))
	beforeFail := testutil.ToFloat64(runsTotal.WithLabelValues("failed"))

	ObserveRun("succeeded", 3*time.Second)
	ObserveRun("failed", time.Second)

	if got := testutil.ToFloat64(runsTotal.WithLabelValues("succeeded")) - beforeOK; got != 1 {
		t.Errorf("expected 1 succeeded run, got %f", got)
	}
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("failed")) - beforeFail; got != 1 {
		t.Errorf("expected 1 failed run, got %f", got)
	}
	if val := testutil.CollectAndCount(runDurationSeconds); val <= 0 {
		t.Errorf("expected run durations to be observed, got %d", val)
	}
}

func TestAddNormalizedRecords(t *testing.T) {
	before := testutil.ToFloat64(recordsNormalizedTotal)
	AddNormalizedRecords(7)
	AddNormalizedRecords(0)
	if got := testutil.ToFloat64(recordsNormalizedTotal) - before; got != 7 {
		t.Errorf("expected 7 normalized records, got %f", got)
	}
}

func TestObserveWrite(t *testing.T) {
	beforeWritten := testutil.ToFloat64(recordsWrittenTotal)
	beforeReplaced := testutil.ToFloat64(recordsReplacedTotal)

	ObserveWrite(14, 7)

	if got := testutil.ToFloat64(recordsWrittenTotal) - beforeWritten; got != 14 {
		t.Errorf("expected 14 written, got %f", got)
	}
	if got := testutil.ToFloat64(recordsReplacedTotal) - beforeReplaced; got != 7 {
		t.Errorf("expected 7 replaced, got %f", got)
	}
}

func TestIncValidationFinding(t *testing.T) {
	before := testutil.ToFloat64(validationFindingsTotal.WithLabelValues("null_density", "warning"))
	IncValidationFinding("null_density", "warning")
	if got := testutil.ToFloat64(validationFindingsTotal.WithLabelValues("null_density", "warning")) - before; got != 1 {
		t.Errorf("expected 1 null_density warning, got %f", got)
	}
}
