package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveFetch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch("prices", 10*time.Millisecond, nil)
	m.ObserveFetch("prices", 10*time.Millisecond, errors.New("boom"))
	m.ObserveFetch("prices", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("prices", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("prices", "error")))
}

func TestRecordStateAndGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordState("ready", 2)
	m.RecordState("ready", 0)
	m.SetStale("holdings", true)
	m.SetBreakerState("prices", 2)
	m.SetClients(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StateTotal.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DroppedHoldings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResourceStale.WithLabelValues("holdings")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("prices")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WSClients))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/api/state", 200, 5*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/state", 200, 5*time.Millisecond)
	m.RecordHTTPRequest("DELETE", "/api/holdings/{symbol}", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/state", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("DELETE", "/api/holdings/{symbol}", "404")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("prices", time.Second, nil)
		m.SetStale("prices", true)
		m.SetBreakerState("prices", 1)
		m.RecordState("loading", 0)
		m.SetClients(1)
		m.RecordHTTPRequest("GET", "/", 200, time.Second)
	})
}
