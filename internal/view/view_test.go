package view

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptopulse/internal/models"
	"cryptopulse/internal/reconcile"
	"cryptopulse/internal/resource"
)

var at = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func btc() []models.EnrichedAsset {
	return []models.EnrichedAsset{{
		Symbol: "BTC", Name: "Bitcoin", Quantity: 0.5, CurrentPrice: 45000,
		TotalValue: 22500, CostBasis: 22000, ProfitLoss: 500,
		ProfitLossPercentage: 500.0 / 22000 * 100, LastUpdated: at,
	}}
}

func TestRenderNonDerivedStates(t *testing.T) {
	loading := Render(reconcile.Loading{})
	assert.Equal(t, reconcile.KindLoading, loading.Kind)
	assert.Nil(t, loading.Summary)

	failed := Render(reconcile.Error{Cause: errors.New("prices down"), Retryable: true})
	assert.Equal(t, reconcile.KindError, failed.Kind)
	assert.Equal(t, "prices down", failed.Message)
	assert.True(t, failed.CanRetry)
	assert.Empty(t, failed.Assets)

	empty := Render(reconcile.Empty{})
	assert.Equal(t, MessageEmpty, empty.Message)

	partial := Render(reconcile.Partial{
		Holdings: &models.HoldingsSnapshot{Assets: []models.HoldingLot{{Symbol: "BTC", Quantity: 1}}},
		Reason:   reconcile.ReasonWaitingForPrices,
	})
	assert.Equal(t, reconcile.KindPartial, partial.Kind)
	assert.Len(t, partial.Holdings, 1)
	assert.Nil(t, partial.Summary)
	assert.Empty(t, partial.Assets)
}

func TestProfitLossOnlyInStaleAndReadyViews(t *testing.T) {
	quotes := []models.PriceQuote{{Symbol: "BTC", Name: "Bitcoin", CurrentPrice: 45000, LastUpdated: at}}
	lots := models.HoldingsSnapshot{Assets: []models.HoldingLot{{Symbol: "BTC", Quantity: 0.5, CostBasis: 22000}}, LastUpdated: at}
	statuses := []resource.Status{resource.StatusPending, resource.StatusFailed, resource.StatusSucceeded}

	for _, ps := range statuses {
		for _, hs := range statuses {
			for _, pv := range []bool{false, true} {
				for _, hv := range []bool{false, true} {
					for _, stale := range []bool{false, true} {
						prices := reconcile.PriceObservation{Status: ps, HasValue: pv, IsStale: pv && stale}
						holdings := reconcile.HoldingsObservation{Status: hs, HasValue: hv}
						if pv {
							prices.Value = quotes
						}
						if hv {
							holdings.Value = lots
						}
						if ps == resource.StatusFailed {
							prices.Err = errors.New("prices down")
						}
						if hs == resource.StatusFailed {
							holdings.Err = errors.New("holdings down")
						}

						v := Render(reconcile.Reconcile(prices, holdings, at))
						switch v.Kind {
						case reconcile.KindStale, reconcile.KindReady:
							assert.NotNil(t, v.Summary, "%s %s %v %v", ps, hs, pv, hv)
							assert.NotEmpty(t, v.Assets)
						default:
							assert.Nil(t, v.Summary, "%s view for %s/%s carries a summary", v.Kind, ps, hs)
							assert.Nil(t, v.Assets, "%s view for %s/%s carries assets", v.Kind, ps, hs)
						}
					}
				}
			}
		}
	}
}

func TestRenderReadyRoundsToCents(t *testing.T) {
	v := Render(reconcile.Ready{Assets: btc(), Summary: models.PortfolioSummary{
		TotalValue: 22500, TotalCostBasis: 22000, TotalProfitLoss: 500,
		TotalProfitLossPercentage: 500.0 / 22000 * 100, LastUpdated: at,
	}})

	require.Len(t, v.Assets, 1)
	assert.Equal(t, "2.27", v.Assets[0].ProfitLossPercentage.String())
	assert.Equal(t, "22500", v.Assets[0].TotalValue.String())
	require.NotNil(t, v.Summary)
	assert.Equal(t, "500", v.Summary.TotalProfitLoss.String())
	assert.Nil(t, v.StaleSince)
}

func TestRenderStaleCarriesTimestamp(t *testing.T) {
	v := Render(reconcile.Stale{Assets: btc(), StaleSince: at})
	assert.Equal(t, reconcile.KindStale, v.Kind)
	require.NotNil(t, v.StaleSince)
	assert.Equal(t, at, *v.StaleSince)
	assert.Len(t, v.Assets, 1)
}

func TestViewJSONShape(t *testing.T) {
	raw, err := json.Marshal(Render(reconcile.Loading{}))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "loading", decoded["kind"])
	assert.NotContains(t, decoded, "summary")
	assert.NotContains(t, decoded, "assets")
}
