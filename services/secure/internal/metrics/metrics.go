// Package metrics exposes secure-layer counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Response kinds, also used as audit event kinds.
const (
	KindSecure = "secure"
	KindPlain  = "plain"
	KindError  = "error"
)

// Reconstruction results.
const (
	ResultOK         = "ok"
	ResultNone       = "none"
	ResultRejected   = "rejected"
	ResultIncomplete = "incomplete"
)

// Metrics holds the counters and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	Requests            *prometheus.CounterVec
	ReplayRejected      prometheus.Counter
	HeaderPairsRejected prometheus.Counter
	CredentialsRebuilt  *prometheus.CounterVec
}

// New creates and registers all counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shroud_requests_total",
				Help: "Requests handled by the secure layer, by response kind",
			},
			[]string{"kind"},
		),
		ReplayRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shroud_replay_rejected_total",
			Help: "Header sets rejected for a missing or stale timestamp",
		}),
		HeaderPairsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shroud_header_pairs_rejected_total",
			Help: "Individual header pairs that failed verification",
		}),
		CredentialsRebuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shroud_credentials_reconstructed_total",
				Help: "Credential reconstruction attempts, by result",
			},
			[]string{"result"},
		),
	}
	m.Registry.MustRegister(
		m.Requests,
		m.ReplayRejected,
		m.HeaderPairsRejected,
		m.CredentialsRebuilt,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
