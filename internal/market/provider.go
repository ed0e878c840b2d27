package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptopulse/internal/finance"
	"cryptopulse/internal/models"
)

// Fetcher delivers the current set of price quotes.
type Fetcher interface {
	FetchQuotes(ctx context.Context) ([]models.PriceQuote, error)
}

// CoinGecko reads quotes from the /coins/markets endpoint.
type CoinGecko struct {
	httpClient *http.Client
	baseURL    string
	ids        []string
}

func NewCoinGecko(baseURL string, symbols []string, timeout time.Duration) *CoinGecko {
	ids := make([]string, 0, len(symbols))
	seen := map[string]bool{}
	for _, s := range symbols {
		id, ok := coinGeckoIDs[normalize(s)]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &CoinGecko{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		ids:        ids,
	}
}

func (c *CoinGecko) FetchQuotes(ctx context.Context) ([]models.PriceQuote, error) {
	if len(c.ids) == 0 {
		return []models.PriceQuote{}, nil
	}

	values := url.Values{}
	values.Set("vs_currency", "usd")
	values.Set("ids", strings.Join(c.ids, ","))
	endpoint := c.baseURL + "/coins/markets?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create coingecko request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch coingecko markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload []struct {
		ID                       string    `json:"id"`
		Symbol                   string    `json:"symbol"`
		Name                     string    `json:"name"`
		CurrentPrice             float64   `json:"current_price"`
		PriceChange24h           float64   `json:"price_change_24h"`
		PriceChangePercentage24h float64   `json:"price_change_percentage_24h"`
		LastUpdated              time.Time `json:"last_updated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode coingecko markets: %w", err)
	}

	quotes := make([]models.PriceQuote, 0, len(payload))
	for _, p := range payload {
		quotes = append(quotes, models.PriceQuote{
			ID:                       p.ID,
			Symbol:                   normalize(p.Symbol),
			Name:                     p.Name,
			CurrentPrice:             p.CurrentPrice,
			PriceChange24h:           p.PriceChange24h,
			PriceChangePercentage24h: p.PriceChangePercentage24h,
			LastUpdated:              p.LastUpdated,
		})
	}
	return quotes, nil
}

// ErrSimulatedFailure is returned by the simulator on an injected failure.
var ErrSimulatedFailure = errors.New("network error: failed to fetch prices, please try again")

type simulatedCoin struct {
	id     string
	symbol string
	name   string
	base   float64
}

var simulatedCoins = []simulatedCoin{
	{"bitcoin", "BTC", "Bitcoin", 45000},
	{"ethereum", "ETH", "Ethereum", 2400},
	{"solana", "SOL", "Solana", 98},
	{"cardano", "ADA", "Cardano", 0.52},
	{"polkadot", "DOT", "Polkadot", 7.2},
}

type SimulatorOptions struct {
	FailureRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Volatility  float64 // total swing around the base price, 0.1 = ±5%
	Seed        int64
	Now         func() time.Time
}

// Simulator produces volatile quotes around fixed base prices with injected
// latency and failures.
type Simulator struct {
	opts SimulatorOptions
	mu   sync.Mutex
	rng  *rand.Rand
}

func NewSimulator(opts SimulatorOptions) *Simulator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxLatency < opts.MinLatency {
		opts.MaxLatency = opts.MinLatency
	}
	return &Simulator{opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}
}

func (s *Simulator) FetchQuotes(ctx context.Context) ([]models.PriceQuote, error) {
	s.mu.Lock()
	latency := s.opts.MinLatency
	if span := s.opts.MaxLatency - s.opts.MinLatency; span > 0 {
		latency += time.Duration(s.rng.Int63n(int64(span)))
	}
	fail := s.rng.Float64() < s.opts.FailureRate
	moves := make([]float64, len(simulatedCoins))
	for i := range moves {
		moves[i] = (s.rng.Float64() - 0.5) * s.opts.Volatility
	}
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if fail {
		return nil, ErrSimulatedFailure
	}

	now := s.opts.Now().UTC()
	quotes := make([]models.PriceQuote, 0, len(simulatedCoins))
	for i, coin := range simulatedCoins {
		current := coin.base * (1 + moves[i])
		change := current - coin.base
		quotes = append(quotes, models.PriceQuote{
			ID:                       coin.id,
			Symbol:                   coin.symbol,
			Name:                     coin.name,
			CurrentPrice:             current,
			PriceChange24h:           change,
			PriceChangePercentage24h: finance.PriceChangePercentage(current, change),
			LastUpdated:              now,
		})
	}
	return quotes, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"DOGE":  "dogecoin",
	"XRP":   "ripple",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
}
