package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptopulse/internal/db"
	"cryptopulse/internal/finance"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/models"
	"cryptopulse/internal/reconcile"
	"cryptopulse/internal/store"
	"cryptopulse/internal/view"
)

type fakePortfolio struct {
	state           atomic.Value
	refreshAll      atomic.Int32
	refreshHoldings atomic.Int32
	refreshAllErr   error
}

func newFakePortfolio(s reconcile.SystemState) *fakePortfolio {
	p := &fakePortfolio{}
	p.state.Store(&s)
	return p
}

func (f *fakePortfolio) State() reconcile.SystemState {
	return *f.state.Load().(*reconcile.SystemState)
}

func (f *fakePortfolio) RefreshAll(context.Context) error {
	f.refreshAll.Add(1)
	return f.refreshAllErr
}

func (f *fakePortfolio) RefreshHoldings(context.Context) error {
	f.refreshHoldings.Add(1)
	return nil
}

func readyState() reconcile.SystemState {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assets := []models.EnrichedAsset{finance.Enrich(
		models.HoldingLot{Symbol: "BTC", Quantity: 2, CostBasis: 100},
		models.PriceQuote{ID: "bitcoin", Symbol: "BTC", Name: "Bitcoin", CurrentPrice: 200, LastUpdated: now},
	)}
	return reconcile.Ready{Assets: assets, Summary: finance.Summarize(assets, now)}
}

func setupServer(t *testing.T, p Portfolio) (*Server, *metrics.Metrics) {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m := metrics.New(prometheus.NewRegistry())
	server := NewServer(p, Options{
		Store:   store.NewSQLiteStore(sqlDB),
		Metrics: m,
		Log:     zerolog.Nop(),
	})
	t.Cleanup(server.Hub().Close)
	return server, m
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	server, _ := setupServer(t, newFakePortfolio(reconcile.Loading{}))

	resp := do(t, server, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestStateRendersCurrentView(t *testing.T) {
	server, _ := setupServer(t, newFakePortfolio(readyState()))

	resp := do(t, server, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var v view.View
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v))
	assert.Equal(t, reconcile.KindReady, v.Kind)
	require.NotNil(t, v.Summary)
	assert.True(t, v.Summary.TotalValue.Equal(decimal.NewFromInt(400)), v.Summary.TotalValue.String())
	assert.True(t, v.Summary.TotalProfitLoss.Equal(decimal.NewFromInt(300)))
	require.Len(t, v.Assets, 1)
	assert.Equal(t, "BTC", v.Assets[0].Symbol)
}

func TestRefreshReportsErrorStateWithOK(t *testing.T) {
	p := newFakePortfolio(reconcile.Error{Cause: errors.New("feed down"), Retryable: true})
	p.refreshAllErr = errors.New("feed down")
	server, _ := setupServer(t, p)

	resp := do(t, server, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int32(1), p.refreshAll.Load())

	var v view.View
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v))
	assert.Equal(t, reconcile.KindError, v.Kind)
	assert.True(t, v.CanRetry)
	assert.Equal(t, "feed down", v.Message)
}

func TestHoldingsLifecycle(t *testing.T) {
	p := newFakePortfolio(reconcile.Loading{})
	server, _ := setupServer(t, p)

	resp := do(t, server, http.MethodPut, "/api/holdings/btc", []byte(`{"quantity":0.5,"costBasis":22000}`))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var saved models.HoldingLot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &saved))
	assert.Equal(t, models.HoldingLot{Symbol: "BTC", Quantity: 0.5, CostBasis: 22000}, saved)
	assert.Equal(t, int32(1), p.refreshHoldings.Load())

	resp = do(t, server, http.MethodGet, "/api/holdings", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var lots []models.HoldingLot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &lots))
	require.Len(t, lots, 1)
	assert.Equal(t, "BTC", lots[0].Symbol)

	resp = do(t, server, http.MethodDelete, "/api/holdings/BTC", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, int32(2), p.refreshHoldings.Load())

	resp = do(t, server, http.MethodDelete, "/api/holdings/BTC", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, int32(2), p.refreshHoldings.Load())
}

func TestUpsertRejectsInvalidHolding(t *testing.T) {
	server, _ := setupServer(t, newFakePortfolio(reconcile.Loading{}))

	resp := do(t, server, http.MethodPut, "/api/holdings/ETH", []byte(`{"quantity":-1,"costBasis":10}`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, server, http.MethodPut, "/api/holdings/ETH", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHoldingsRoutesWithoutStore(t *testing.T) {
	server := NewServer(newFakePortfolio(reconcile.Empty{}), Options{Log: zerolog.Nop()})

	resp := do(t, server, http.MethodGet, "/api/holdings", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.Code)
	resp = do(t, server, http.MethodDelete, "/api/holdings/BTC", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.Code)
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	server, m := setupServer(t, newFakePortfolio(reconcile.Loading{}))

	do(t, server, http.MethodDelete, "/api/holdings/DOGE", nil)
	do(t, server, http.MethodGet, "/api/health", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("DELETE", "/api/holdings/{symbol}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/health", "200")))
}

func TestCORSPreflight(t *testing.T) {
	server, _ := setupServer(t, newFakePortfolio(reconcile.Loading{}))

	req := httptest.NewRequest(http.MethodOptions, "/api/holdings/BTC", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)

	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestWebSocketSendsCurrentViewThenBroadcasts(t *testing.T) {
	server, _ := setupServer(t, newFakePortfolio(reconcile.Loading{}))
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first view.View
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, reconcile.KindLoading, first.Kind)

	server.Hub().Publish(view.Render(reconcile.Empty{}))

	var next view.View
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, reconcile.KindEmpty, next.Kind)
	assert.Equal(t, view.MessageEmpty, next.Message)
}

func TestWebSocketNeverReceivesOlderViewAfterNewer(t *testing.T) {
	// The portfolio reports an older state than the one already published.
	server, _ := setupServer(t, newFakePortfolio(reconcile.Loading{}))
	server.Hub().Publish(view.Render(readyState()))

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first view.View
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, reconcile.KindReady, first.Kind)

	server.Hub().Publish(view.Render(reconcile.Empty{}))

	var next view.View
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, reconcile.KindEmpty, next.Kind)
}
