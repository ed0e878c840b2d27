package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service. All methods are
// safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	FetchTotal      *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	ResourceStale   *prometheus.GaugeVec
	BreakerState    *prometheus.GaugeVec
	StateTotal      *prometheus.CounterVec
	DroppedHoldings prometheus.Gauge
	WSClients       prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptopulse",
				Subsystem: "resource",
				Name:      "fetch_total",
				Help:      "Resource fetches by outcome",
			},
			[]string{"resource", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cryptopulse",
				Subsystem: "resource",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of resource fetches including retries",
				Buckets:   defaultBuckets,
			},
			[]string{"resource"},
		),
		ResourceStale: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cryptopulse",
				Subsystem: "resource",
				Name:      "stale",
				Help:      "1 when the resource value is past its stale time",
			},
			[]string{"resource"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cryptopulse",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"resource"},
		),
		StateTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptopulse",
				Subsystem: "reconcile",
				Name:      "states_total",
				Help:      "Reconciliation passes by emitted state",
			},
			[]string{"state"},
		),
		DroppedHoldings: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cryptopulse",
				Subsystem: "reconcile",
				Name:      "dropped_holdings",
				Help:      "Holdings without a matching price quote in the last pass",
			},
		),
		WSClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cryptopulse",
				Subsystem: "realtime",
				Name:      "clients",
				Help:      "Connected websocket clients",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptopulse",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cryptopulse",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (m *Metrics) ObserveFetch(resource string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.FetchTotal.WithLabelValues(resource, outcome).Inc()
	m.FetchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *Metrics) SetStale(resource string, stale bool) {
	if m == nil {
		return
	}
	v := 0.0
	if stale {
		v = 1
	}
	m.ResourceStale.WithLabelValues(resource).Set(v)
}

func (m *Metrics) SetBreakerState(resource string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(resource).Set(float64(state))
}

func (m *Metrics) RecordState(kind string, dropped int) {
	if m == nil {
		return
	}
	m.StateTotal.WithLabelValues(kind).Inc()
	m.DroppedHoldings.Set(float64(dropped))
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
