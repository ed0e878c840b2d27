package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cryptopulse/internal/api"
	"cryptopulse/internal/config"
	"cryptopulse/internal/db"
	"cryptopulse/internal/market"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/portfolio"
	"cryptopulse/internal/realtime"
	"cryptopulse/internal/reconcile"
	"cryptopulse/internal/scheduler"
	"cryptopulse/internal/store"
	"cryptopulse/internal/view"
	"cryptopulse/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	var (
		addr   = flag.String("addr", cfg.Addr, "server listen address")
		dbPath = flag.String("db", cfg.DBPath, "sqlite database file")
	)
	flag.Parse()
	cfg.Addr, cfg.DBPath = *addr, *dbPath

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	quotes := priceFetcher(cfg)

	lots, st, sqlDB, err := holdingsFetcher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("holdings source init failed")
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}

	svc := portfolio.NewService(quotes, lots, portfolio.Options{
		Prices:   cfg.Prices,
		Holdings: cfg.Holdings,
		Log:      log,
		Metrics:  m,
	})

	hub := realtime.NewHub(log, m)
	defer hub.Close()
	svc.OnChange(func(s reconcile.SystemState) {
		hub.Publish(view.Render(s))
	})
	hub.Publish(view.Render(svc.State()))

	sched := scheduler.New(log)
	if err := svc.RegisterJobs(sched); err != nil {
		log.Fatal().Err(err).Msg("scheduling refresh jobs failed")
	}
	sched.Start()
	defer sched.Stop()

	apiServer := api.NewServer(svc, api.Options{
		Store:          st,
		Hub:            hub,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Log:            log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := svc.RefreshAll(ctx); err != nil {
			log.Warn().Err(err).Msg("initial refresh failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	log.Info().
		Str("addr", cfg.Addr).
		Str("prices", cfg.PriceSource).
		Str("holdings", cfg.HoldingsSource).
		Msg("CryptoPulse backend listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server failed")
	}
}

func priceFetcher(cfg *config.Config) market.Fetcher {
	if cfg.PriceSource == config.PriceSourceCoinGecko {
		return market.NewCoinGecko(cfg.CoinGeckoURL, cfg.Symbols, cfg.Prices.FetchTimeout)
	}
	return market.NewSimulator(market.SimulatorOptions{
		FailureRate: cfg.Simulator.FailureRate,
		MinLatency:  cfg.Simulator.MinLatency,
		MaxLatency:  cfg.Simulator.MaxLatency,
		Volatility:  cfg.Simulator.Volatility,
		Seed:        cfg.Simulator.Seed,
	})
}

// holdingsFetcher returns the holdings source and, for the sqlite backend,
// the writable store and its database handle.
func holdingsFetcher(cfg *config.Config, log zerolog.Logger) (store.Fetcher, store.Store, *sql.DB, error) {
	switch cfg.HoldingsSource {
	case config.HoldingsSourceSample:
		return store.Static{Lots: store.SamplePortfolio()}, nil, nil, nil
	case config.HoldingsSourceEmpty:
		return store.Static{}, nil, nil, nil
	}

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	st := store.NewSQLiteStore(sqlDB)
	if err := st.SeedSample(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, err
	}
	log.Info().Str("path", cfg.DBPath).Msg("holdings database ready")
	return st, st, sqlDB, nil
}
