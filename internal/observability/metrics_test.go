package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/papertrail/internal/shared"
	"github.com/odyssey-erp/papertrail/internal/workflow"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveJob("documents:integrity", nil)
	body := scrape(t, metrics)
	if !strings.Contains(body, `papertrail_jobs_total{outcome="ok",task="documents:integrity"} 1`) {
		t.Fatalf("expected body to contain papertrail_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/challans/{id}")

	req := httptest.NewRequest(http.MethodGet, "/challans/42", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `papertrail_http_requests_total{code="418",route="/challans/{id}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `papertrail_http_request_duration_seconds_bucket{route="/challans/{id}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestMetricsObserveTransitionsAndJobs(t *testing.T) {
	metrics := NewMetrics()
	var observer workflow.Observer = metrics

	observer.ObserveTransition(shared.DocBill, workflow.ActionPay, workflow.OutcomeApplied)
	observer.ObserveTransition(shared.DocBill, workflow.ActionPay, workflow.OutcomeApplied)
	metrics.ObserveJob("documents:integrity", errors.New("boom"))
	metrics.ObserveDrift(shared.DocChallan, 3)
	metrics.ObserveDrift(shared.DocInvoice, 0)

	body := scrape(t, metrics)
	for _, want := range []string{
		`papertrail_workflow_transitions_total{action="pay",document="bill",outcome="applied"} 2`,
		`papertrail_jobs_total{outcome="error",task="documents:integrity"} 1`,
		`papertrail_document_total_drift_total{document="challan"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output, got: %s", want, body)
		}
	}
	if strings.Contains(body, `document="invoice"`) {
		t.Fatalf("zero drift must not create a series")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveTransition(shared.DocChallan, workflow.ActionDispatch, workflow.OutcomeApplied)
	metrics.ObserveJob("x", nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
