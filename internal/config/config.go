// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	PriceSourceSimulated = "simulated"
	PriceSourceCoinGecko = "coingecko"

	HoldingsSourceSQLite = "sqlite"
	HoldingsSourceSample = "sample"
	HoldingsSourceEmpty  = "empty"
)

type Config struct {
	Addr      string
	DBPath    string
	LogLevel  string
	LogPretty bool

	PriceSource    string
	HoldingsSource string
	CoinGeckoURL   string
	Symbols        []string

	Prices    ResourceConfig
	Holdings  ResourceConfig
	Simulator SimulatorConfig

	CORSAllowedOrigins []string
}

// ResourceConfig is the refresh policy of one resource. A zero
// RefetchInterval disables scheduled refreshes.
type ResourceConfig struct {
	StaleTime       time.Duration
	RefetchInterval time.Duration
	FetchTimeout    time.Duration
	Retries         int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

type SimulatorConfig struct {
	FailureRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Volatility  float64
	Seed        int64
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:      getEnv("ADDR", ":8080"),
		DBPath:    getEnv("DB_PATH", "./cryptopulse.db"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		PriceSource:    strings.ToLower(getEnv("PRICE_SOURCE", PriceSourceSimulated)),
		HoldingsSource: strings.ToLower(getEnv("HOLDINGS_SOURCE", HoldingsSourceSQLite)),
		CoinGeckoURL:   getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		Symbols:        getEnvAsList("SYMBOLS", []string{"BTC", "ETH", "SOL", "ADA", "DOT"}),

		Prices: ResourceConfig{
			StaleTime:       getEnvAsDuration("PRICES_STALE_TIME", 20*time.Second),
			RefetchInterval: getEnvAsDuration("PRICES_REFETCH_INTERVAL", 30*time.Second),
			FetchTimeout:    getEnvAsDuration("PRICES_FETCH_TIMEOUT", 10*time.Second),
			Retries:         getEnvAsInt("PRICES_RETRIES", 2),
			InitialBackoff:  getEnvAsDuration("PRICES_INITIAL_BACKOFF", time.Second),
			MaxBackoff:      getEnvAsDuration("PRICES_MAX_BACKOFF", 30*time.Second),
		},
		Holdings: ResourceConfig{
			StaleTime:       getEnvAsDuration("HOLDINGS_STALE_TIME", 5*time.Minute),
			RefetchInterval: getEnvAsDuration("HOLDINGS_REFETCH_INTERVAL", 0),
			FetchTimeout:    getEnvAsDuration("HOLDINGS_FETCH_TIMEOUT", 10*time.Second),
			Retries:         getEnvAsInt("HOLDINGS_RETRIES", 2),
			InitialBackoff:  getEnvAsDuration("HOLDINGS_INITIAL_BACKOFF", time.Second),
			MaxBackoff:      getEnvAsDuration("HOLDINGS_MAX_BACKOFF", 30*time.Second),
		},
		Simulator: SimulatorConfig{
			FailureRate: getEnvAsFloat("SIM_FAILURE_RATE", 0.1),
			MinLatency:  getEnvAsDuration("SIM_MIN_LATENCY", 500*time.Millisecond),
			MaxLatency:  getEnvAsDuration("SIM_MAX_LATENCY", 1500*time.Millisecond),
			Volatility:  getEnvAsFloat("SIM_VOLATILITY", 0.1),
			Seed:        int64(getEnvAsInt("SIM_SEED", int(time.Now().UnixNano()%1_000_000))),
		},

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.PriceSource {
	case PriceSourceSimulated, PriceSourceCoinGecko:
	default:
		errs = append(errs, fmt.Errorf("PRICE_SOURCE must be %q or %q, got %q", PriceSourceSimulated, PriceSourceCoinGecko, c.PriceSource))
	}
	switch c.HoldingsSource {
	case HoldingsSourceSQLite, HoldingsSourceSample, HoldingsSourceEmpty:
	default:
		errs = append(errs, fmt.Errorf("HOLDINGS_SOURCE must be sqlite, sample or empty, got %q", c.HoldingsSource))
	}
	if c.Simulator.FailureRate < 0 || c.Simulator.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("SIM_FAILURE_RATE must be within [0, 1], got %v", c.Simulator.FailureRate))
	}
	for name, r := range map[string]ResourceConfig{"PRICES": c.Prices, "HOLDINGS": c.Holdings} {
		if r.StaleTime < 0 || r.RefetchInterval < 0 {
			errs = append(errs, fmt.Errorf("%s durations must not be negative", name))
		}
		if r.Retries < 0 {
			errs = append(errs, fmt.Errorf("%s_RETRIES must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
