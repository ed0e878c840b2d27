// Package view maps each SystemState to the JSON view served to clients.
package view

import (
	"time"

	"github.com/shopspring/decimal"

	"cryptopulse/internal/models"
	"cryptopulse/internal/reconcile"
)

const (
	MessageLoading = "Loading portfolio..."
	MessageEmpty   = "No assets in portfolio yet."
	MessageStale   = "Prices may be out of date. Refreshing..."
)

type View struct {
	Kind       reconcile.Kind      `json:"kind"`
	Message    string              `json:"message,omitempty"`
	CanRetry   bool                `json:"canRetry"`
	Assets     []Asset             `json:"assets,omitempty"`
	Summary    *Summary            `json:"summary,omitempty"`
	Holdings   []models.HoldingLot `json:"holdings,omitempty"`
	Quotes     []models.PriceQuote `json:"quotes,omitempty"`
	StaleSince *time.Time          `json:"staleSince,omitempty"`
}

type Asset struct {
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Quantity                 decimal.Decimal `json:"quantity"`
	CurrentPrice             decimal.Decimal `json:"currentPrice"`
	TotalValue               decimal.Decimal `json:"totalValue"`
	CostBasis                decimal.Decimal `json:"costBasis"`
	ProfitLoss               decimal.Decimal `json:"profitLoss"`
	ProfitLossPercentage     decimal.Decimal `json:"profitLossPercentage"`
	PriceChange24h           decimal.Decimal `json:"priceChange24h"`
	PriceChangePercentage24h decimal.Decimal `json:"priceChangePercentage24h"`
	LastUpdated              time.Time       `json:"lastUpdated"`
}

type Summary struct {
	TotalValue                decimal.Decimal `json:"totalValue"`
	TotalCostBasis            decimal.Decimal `json:"totalCostBasis"`
	TotalProfitLoss           decimal.Decimal `json:"totalProfitLoss"`
	TotalProfitLossPercentage decimal.Decimal `json:"totalProfitLossPercentage"`
	LastUpdated               time.Time       `json:"lastUpdated"`
}

// Render builds the view for s. It panics on a state it does not know.
func Render(s reconcile.SystemState) View {
	return reconcile.Match[View](s, renderer{})
}

type renderer struct{}

func (renderer) Loading(reconcile.Loading) View {
	return View{Kind: reconcile.KindLoading, Message: MessageLoading}
}

func (renderer) Error(s reconcile.Error) View {
	msg := "Something went wrong."
	if s.Cause != nil {
		msg = s.Cause.Error()
	}
	return View{Kind: reconcile.KindError, Message: msg, CanRetry: s.Retryable}
}

func (renderer) Empty(reconcile.Empty) View {
	return View{Kind: reconcile.KindEmpty, Message: MessageEmpty}
}

func (renderer) Partial(s reconcile.Partial) View {
	v := View{Kind: reconcile.KindPartial, Message: s.Reason, Quotes: s.Quotes}
	if s.Holdings != nil {
		v.Holdings = s.Holdings.Assets
	}
	return v
}

func (renderer) Stale(s reconcile.Stale) View {
	since := s.StaleSince
	return View{
		Kind:       reconcile.KindStale,
		Message:    MessageStale,
		Assets:     assets(s.Assets),
		Summary:    summary(s.Summary),
		StaleSince: &since,
	}
}

func (renderer) Ready(s reconcile.Ready) View {
	return View{
		Kind:    reconcile.KindReady,
		Assets:  assets(s.Assets),
		Summary: summary(s.Summary),
	}
}

func assets(in []models.EnrichedAsset) []Asset {
	out := make([]Asset, 0, len(in))
	for _, a := range in {
		out = append(out, Asset{
			Symbol:                   a.Symbol,
			Name:                     a.Name,
			Quantity:                 decimal.NewFromFloat(a.Quantity),
			CurrentPrice:             decimal.NewFromFloat(a.CurrentPrice),
			TotalValue:               cents(a.TotalValue),
			CostBasis:                cents(a.CostBasis),
			ProfitLoss:               cents(a.ProfitLoss),
			ProfitLossPercentage:     cents(a.ProfitLossPercentage),
			PriceChange24h:           cents(a.PriceChange24h),
			PriceChangePercentage24h: cents(a.PriceChangePercentage24h),
			LastUpdated:              a.LastUpdated,
		})
	}
	return out
}

func summary(s models.PortfolioSummary) *Summary {
	return &Summary{
		TotalValue:                cents(s.TotalValue),
		TotalCostBasis:            cents(s.TotalCostBasis),
		TotalProfitLoss:           cents(s.TotalProfitLoss),
		TotalProfitLossPercentage: cents(s.TotalProfitLossPercentage),
		LastUpdated:               s.LastUpdated,
	}
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
