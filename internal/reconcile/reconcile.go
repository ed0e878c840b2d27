// Package reconcile fuses the price and holdings resources into a single
// SystemState. Reconcile is a pure function of its inputs; Engine re-runs it
// whenever either resource changes.
package reconcile

import (
	"time"

	"cryptopulse/internal/finance"
	"cryptopulse/internal/models"
	"cryptopulse/internal/resource"
)

const (
	ReasonWaitingForPrices   = "Waiting for price data..."
	ReasonWaitingForHoldings = "Waiting for portfolio data..."
)

type (
	PriceObservation    = resource.Observation[[]models.PriceQuote]
	HoldingsObservation = resource.Observation[models.HoldingsSnapshot]
)

// Diagnostics reports what a pass left out of the derived view.
type Diagnostics struct {
	Unmatched []string // holding symbols with no price quote
}

func Reconcile(prices PriceObservation, holdings HoldingsObservation, now time.Time) SystemState {
	state, _ := ReconcileWithDiagnostics(prices, holdings, now)
	return state
}

// ReconcileWithDiagnostics resolves the state in fixed priority order:
// loading, error, empty, partial, then stale or ready.
func ReconcileWithDiagnostics(prices PriceObservation, holdings HoldingsObservation, now time.Time) (SystemState, Diagnostics) {
	if loading(prices.Status, prices.HasValue) || loading(holdings.Status, holdings.HasValue) {
		return Loading{}, Diagnostics{}
	}

	if failed(prices.Status, prices.HasValue) {
		return Error{Cause: prices.Err, Retryable: true}, Diagnostics{}
	}
	if failed(holdings.Status, holdings.HasValue) {
		return Error{Cause: holdings.Err, Retryable: true}, Diagnostics{}
	}

	if holdings.HasValue && len(holdings.Value.Assets) == 0 {
		return Empty{}, Diagnostics{}
	}

	switch {
	case holdings.HasValue && !prices.HasValue:
		snapshot := holdings.Value
		return Partial{Holdings: &snapshot, Reason: ReasonWaitingForPrices}, Diagnostics{}
	case prices.HasValue && !holdings.HasValue:
		return Partial{Quotes: prices.Value, Reason: ReasonWaitingForHoldings}, Diagnostics{}
	case !prices.HasValue && !holdings.HasValue:
		// Only reachable when a collaborator reports success without a value.
		return Loading{}, Diagnostics{}
	}

	assets, unmatched := Join(prices.Value, holdings.Value.Assets)
	summary := finance.Summarize(assets, holdings.Value.LastUpdated)
	diag := Diagnostics{Unmatched: unmatched}

	if prices.IsStale || holdings.IsStale {
		return Stale{Assets: assets, Summary: summary, StaleSince: now}, diag
	}
	return Ready{Assets: assets, Summary: summary}, diag
}

func loading(status resource.Status, hasValue bool) bool {
	return status == resource.StatusPending && !hasValue
}

func failed(status resource.Status, hasValue bool) bool {
	return status == resource.StatusFailed && !hasValue
}

// Join enriches every lot that has a quote with the same symbol, preserving
// lot order. Lots without a quote are returned by symbol in unmatched.
func Join(quotes []models.PriceQuote, lots []models.HoldingLot) ([]models.EnrichedAsset, []string) {
	bySymbol := make(map[string]models.PriceQuote, len(quotes))
	for _, q := range quotes {
		if _, ok := bySymbol[q.Symbol]; !ok {
			bySymbol[q.Symbol] = q
		}
	}

	assets := make([]models.EnrichedAsset, 0, len(lots))
	var unmatched []string
	for _, lot := range lots {
		quote, ok := bySymbol[lot.Symbol]
		if !ok {
			unmatched = append(unmatched, lot.Symbol)
			continue
		}
		assets = append(assets, finance.Enrich(lot, quote))
	}
	return assets, unmatched
}
