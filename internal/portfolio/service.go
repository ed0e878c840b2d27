// Package portfolio wires the price and holdings resources to the
// reconciliation engine and exposes the refresh operations used by the API
// and the scheduler.
package portfolio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cryptopulse/internal/config"
	"cryptopulse/internal/market"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/models"
	"cryptopulse/internal/reconcile"
	"cryptopulse/internal/resource"
	"cryptopulse/internal/scheduler"
	"cryptopulse/internal/store"
)

const (
	PricesResource   = "prices"
	HoldingsResource = "holdings"
)

type Options struct {
	Prices   config.ResourceConfig
	Holdings config.ResourceConfig
	Now      func() time.Time
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
}

type Service struct {
	prices   *resource.Resource[[]models.PriceQuote]
	holdings *resource.Resource[models.HoldingsSnapshot]
	engine   *reconcile.Engine
	opts     Options
	log      zerolog.Logger
}

func NewService(quotes market.Fetcher, lots store.Fetcher, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	prices := resource.New(PricesResource,
		withTimeout(opts.Prices.FetchTimeout, quotes.FetchQuotes),
		resourceOptions(opts.Prices, opts))
	holdings := resource.New(HoldingsResource,
		withTimeout(opts.Holdings.FetchTimeout, lots.FetchHoldings),
		resourceOptions(opts.Holdings, opts))

	engine := reconcile.NewEngine(prices, holdings, reconcile.EngineOptions{
		Now:     opts.Now,
		Log:     opts.Log,
		Metrics: opts.Metrics,
	})

	return &Service{
		prices:   prices,
		holdings: holdings,
		engine:   engine,
		opts:     opts,
		log:      opts.Log.With().Str("component", "portfolio").Logger(),
	}
}

func resourceOptions(rc config.ResourceConfig, opts Options) resource.Options {
	return resource.Options{
		StaleTime: rc.StaleTime,
		Retry: resource.RetryConfig{
			MaxRetries:     rc.Retries,
			InitialBackoff: rc.InitialBackoff,
			MaxBackoff:     rc.MaxBackoff,
		},
		Now:     opts.Now,
		Log:     opts.Log,
		Metrics: opts.Metrics,
	}
}

func withTimeout[T any](timeout time.Duration, fetch func(context.Context) (T, error)) resource.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return fetch(ctx)
	}
}

func (s *Service) State() reconcile.SystemState {
	return s.engine.Current()
}

// Recompute runs a reconciliation pass without fetching.
func (s *Service) Recompute() reconcile.SystemState {
	return s.engine.Recompute()
}

// OnChange registers fn for every recomputed state.
func (s *Service) OnChange(fn func(reconcile.SystemState)) {
	s.engine.OnChange(fn)
}

func (s *Service) RefreshPrices(ctx context.Context) error {
	return s.prices.Refresh(ctx)
}

func (s *Service) RefreshHoldings(ctx context.Context) error {
	return s.holdings.Refresh(ctx)
}

// RefreshAll refreshes both resources concurrently and joins their errors.
func (s *Service) RefreshAll(ctx context.Context) error {
	var wg sync.WaitGroup
	var priceErr, holdingsErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		priceErr = s.RefreshPrices(ctx)
	}()
	go func() {
		defer wg.Done()
		holdingsErr = s.RefreshHoldings(ctx)
	}()
	wg.Wait()

	return errors.Join(priceErr, holdingsErr)
}

// RegisterJobs schedules each resource on its own refetch interval. Stale
// transitions need no job: each resource notifies when its value turns stale.
func (s *Service) RegisterJobs(sched *scheduler.Scheduler) error {
	if err := sched.Every(s.opts.Prices.RefetchInterval, scheduler.JobFunc{
		JobName: "refresh-prices",
		Fn:      func() error { return s.RefreshPrices(context.Background()) },
	}); err != nil {
		return err
	}
	return sched.Every(s.opts.Holdings.RefetchInterval, scheduler.JobFunc{
		JobName: "refresh-holdings",
		Fn:      func() error { return s.RefreshHoldings(context.Background()) },
	})
}
