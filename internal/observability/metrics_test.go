package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	t.Run("RecordTransition", func(t *testing.T) {
		m := NewMetrics("mixgen")

		m.RecordTransition("ready", "generating")
		m.RecordTransition("ready", "generating")

		if got := testutil.ToFloat64(m.Transitions.WithLabelValues("ready", "generating")); got != 2 {
			t.Errorf("expected 2 transitions, got %v", got)
		}
	})

	t.Run("RecordOperation", func(t *testing.T) {
		m := NewMetrics("mixgen")

		m.RecordOperation("generate", "ok", 300*time.Millisecond)
		m.RecordOperation("generate", "no_results", time.Second)

		if got := testutil.ToFloat64(m.Operations.WithLabelValues("generate", "ok")); got != 1 {
			t.Errorf("expected 1 ok operation, got %v", got)
		}
		if got := testutil.CollectAndCount(m.OperationLatency); got != 1 {
			t.Errorf("expected 1 latency series, got %d", got)
		}
	})

	t.Run("ObserveRequest", func(t *testing.T) {
		m := NewMetrics("mixgen")

		m.ObserveRequest("/me", 200, 80*time.Millisecond)
		m.ObserveRequest("/me", 0, time.Millisecond)

		if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("/me", "200")); got != 1 {
			t.Errorf("expected 1 request with status 200, got %v", got)
		}
		if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("/me", "transport_error")); got != 1 {
			t.Errorf("expected 1 transport error, got %v", got)
		}
	})

	t.Run("Registries Are Independent", func(t *testing.T) {
		a, b := NewMetrics("mixgen"), NewMetrics("mixgen")
		a.RecordTransition("logged_out", "ready")

		if got := testutil.ToFloat64(b.Transitions.WithLabelValues("logged_out", "ready")); got != 0 {
			t.Errorf("expected fresh registry, got %v", got)
		}
	})

	t.Run("Handler", func(t *testing.T) {
		m := NewMetrics("mixgen")
		m.RecordOperation("confirm", "ok", time.Second)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), `mixgen_workflow_operations_total{operation="confirm",outcome="ok"} 1`) {
			t.Errorf("expected operation counter in output, got:\n%s", body)
		}
		if !strings.Contains(string(body), "go_goroutines") {
			t.Error("expected Go runtime metrics in output")
		}
	})
}
