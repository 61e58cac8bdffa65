package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// None of these may panic on a nil receiver.
	m.ObserveStage("create_repo", "success", time.Second)
	m.IncFailure("remote_api")
	m.IncReconcilePoll()
	m.IncDrift("appeared")
	m.SetAppsByState("present", 3)
}

func TestMetrics_DisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m.ObserveStage("create_repo", "success", time.Second)
	m.IncFailure("")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("Expected 404 from disabled handler, got %d", rec.Code)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "siteforge"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m.ObserveStage("create_repo", "success", 250*time.Millisecond)
	m.ObserveStage("create_repo", "failure", time.Second)
	m.IncFailure("remote_api")
	m.IncReconcilePoll()
	m.IncDrift("disappeared")
	m.SetAppsByState("present", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`siteforge_pipeline_stages_executed_total{outcome="success",stage="create_repo"} 1`,
		`siteforge_pipeline_stages_executed_total{outcome="failure",stage="create_repo"} 1`,
		`siteforge_failures_total{kind="remote_api"} 1`,
		`siteforge_reconcile_polls_total 1`,
		`siteforge_drift_detections_total{direction="disappeared"} 1`,
		`siteforge_apps_by_lifecycle_state{state="present"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metric line %q in exposition", want)
		}
	}
}

func TestMetrics_EmptyFailureKindCountsAsUnclassified(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m.IncFailure("")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `kind="unclassified"`) {
		t.Error("Expected empty kind to be counted as unclassified")
	}
}
