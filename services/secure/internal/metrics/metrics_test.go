package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Requests.WithLabelValues(KindSecure).Inc()
	m.Requests.WithLabelValues(KindSecure).Inc()
	m.ReplayRejected.Inc()

	if got := testutil.ToFloat64(m.Requests.WithLabelValues(KindSecure)); got != 2 {
		t.Errorf("secure requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReplayRejected); got != 1 {
		t.Errorf("replay rejected = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.CredentialsRebuilt.WithLabelValues(ResultOK).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `shroud_credentials_reconstructed_total{result="ok"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}

func TestNewIsolated(t *testing.T) {
	// Two instances must not collide on registration.
	New()
	New()
}
