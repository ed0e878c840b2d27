// Package finance holds the pure profit/loss arithmetic. Nothing here knows
// about freshness or fetch status.
package finance

import (
	"math"
	"time"

	"cryptopulse/internal/models"
)

// TotalValue sums price × quantity over the collection.
func TotalValue(assets []models.EnrichedAsset) float64 {
	total := 0.0
	for _, a := range assets {
		total += a.TotalValue
	}
	return total
}

func TotalCostBasis(assets []models.EnrichedAsset) float64 {
	total := 0.0
	for _, a := range assets {
		total += a.CostBasis
	}
	return total
}

func ProfitLoss(value, costBasis float64) float64 {
	return value - costBasis
}

// ProfitLossPercentage returns the return on costBasis in percent. A zero cost
// basis yields exactly 0, never NaN or Inf.
func ProfitLossPercentage(value, costBasis float64) float64 {
	if costBasis == 0 {
		return 0
	}
	return (value - costBasis) / costBasis * 100
}

// PriceChangePercentage derives the 24h percentage from the current price and
// the absolute change, returning 0 when the previous price was 0.
func PriceChangePercentage(current, change float64) float64 {
	previous := current - change
	if previous == 0 {
		return 0
	}
	return change / previous * 100
}

func SafeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func RoundToTwo(v float64) float64 {
	return math.Round(v*100) / 100
}

// Enrich joins a holding with its quote. The caller guarantees the symbols match.
func Enrich(lot models.HoldingLot, quote models.PriceQuote) models.EnrichedAsset {
	value := quote.CurrentPrice * lot.Quantity
	return models.EnrichedAsset{
		Symbol:                   lot.Symbol,
		Name:                     quote.Name,
		Quantity:                 lot.Quantity,
		CurrentPrice:             quote.CurrentPrice,
		TotalValue:               value,
		CostBasis:                lot.CostBasis,
		ProfitLoss:               ProfitLoss(value, lot.CostBasis),
		ProfitLossPercentage:     ProfitLossPercentage(value, lot.CostBasis),
		PriceChange24h:           quote.PriceChange24h,
		PriceChangePercentage24h: quote.PriceChangePercentage24h,
		LastUpdated:              quote.LastUpdated,
	}
}

// Summarize aggregates an enriched collection. lastUpdated is carried through
// as the representative timestamp.
func Summarize(assets []models.EnrichedAsset, lastUpdated time.Time) models.PortfolioSummary {
	value := TotalValue(assets)
	cost := TotalCostBasis(assets)
	return models.PortfolioSummary{
		TotalValue:                value,
		TotalCostBasis:            cost,
		TotalProfitLoss:           ProfitLoss(value, cost),
		TotalProfitLossPercentage: ProfitLossPercentage(value, cost),
		LastUpdated:               lastUpdated,
	}
}
