package models

import "time"

// PriceQuote is one market quote as delivered by the price feed. A refresh
// produces a new slice of quotes; existing quotes are never mutated.
type PriceQuote struct {
	ID                       string    `json:"id"`
	Symbol                   string    `json:"symbol"`
	Name                     string    `json:"name"`
	CurrentPrice             float64   `json:"currentPrice"`
	PriceChange24h           float64   `json:"priceChange24h"`
	PriceChangePercentage24h float64   `json:"priceChangePercentage24h"`
	LastUpdated              time.Time `json:"lastUpdated"`
}

// HoldingLot is a position in one symbol. CostBasis is the total amount paid.
type HoldingLot struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	CostBasis float64 `json:"costBasis"`
}

type HoldingsSnapshot struct {
	Assets      []HoldingLot `json:"assets"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

type EnrichedAsset struct {
	Symbol                   string    `json:"symbol"`
	Name                     string    `json:"name"`
	Quantity                 float64   `json:"quantity"`
	CurrentPrice             float64   `json:"currentPrice"`
	TotalValue               float64   `json:"totalValue"`
	CostBasis                float64   `json:"costBasis"`
	ProfitLoss               float64   `json:"profitLoss"`
	ProfitLossPercentage     float64   `json:"profitLossPercentage"`
	PriceChange24h           float64   `json:"priceChange24h"`
	PriceChangePercentage24h float64   `json:"priceChangePercentage24h"`
	LastUpdated              time.Time `json:"lastUpdated"`
}

type PortfolioSummary struct {
	TotalValue                float64   `json:"totalValue"`
	TotalCostBasis            float64   `json:"totalCostBasis"`
	TotalProfitLoss           float64   `json:"totalProfitLoss"`
	TotalProfitLossPercentage float64   `json:"totalProfitLossPercentage"`
	LastUpdated               time.Time `json:"lastUpdated"`
}
