package reconcile

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cryptopulse/internal/metrics"
	"cryptopulse/internal/models"
	"cryptopulse/internal/resource"
)

// Source is the part of a resource the engine depends on.
type Source[T any] interface {
	Observe() resource.Observation[T]
	Subscribe(fn func())
}

type EngineOptions struct {
	Now     func() time.Time
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Engine recomputes the SystemState on every change notification from either
// source and hands the result to its listeners. Passes are serialized.
type Engine struct {
	prices   Source[[]models.PriceQuote]
	holdings Source[models.HoldingsSnapshot]
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Metrics

	passMu    sync.Mutex
	listeners []func(SystemState)

	stateMu sync.RWMutex
	current SystemState
}

func NewEngine(prices Source[[]models.PriceQuote], holdings Source[models.HoldingsSnapshot], opts EngineOptions) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		prices:   prices,
		holdings: holdings,
		now:      opts.Now,
		log:      opts.Log.With().Str("component", "reconcile").Logger(),
		metrics:  opts.Metrics,
	}
	e.current = e.Recompute()
	prices.Subscribe(func() { e.Recompute() })
	holdings.Subscribe(func() { e.Recompute() })
	return e
}

// OnChange registers fn to receive every recomputed state. fn runs inside the
// pass and must not call Recompute.
func (e *Engine) OnChange(fn func(SystemState)) {
	e.passMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.passMu.Unlock()
}

func (e *Engine) Current() SystemState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.current
}

// Recompute reads each source once and publishes the resulting state.
func (e *Engine) Recompute() SystemState {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	prices := e.prices.Observe()
	holdings := e.holdings.Observe()
	state, diag := ReconcileWithDiagnostics(prices, holdings, e.now())

	e.stateMu.Lock()
	previous := e.current
	e.current = state
	e.stateMu.Unlock()

	if previous == nil || previous.Kind() != state.Kind() {
		ev := e.log.Info().Str("state", string(state.Kind()))
		if previous != nil {
			ev = ev.Str("from", string(previous.Kind()))
		}
		if errState, ok := state.(Error); ok && errState.Cause != nil {
			ev = ev.AnErr("cause", errState.Cause)
		}
		ev.Msg("system state changed")
	}
	if len(diag.Unmatched) > 0 {
		e.log.Warn().Strs("symbols", diag.Unmatched).Msg("holdings without price quote excluded")
	}
	e.metrics.RecordState(string(state.Kind()), len(diag.Unmatched))

	for _, fn := range e.listeners {
		fn(state)
	}
	return state
}
