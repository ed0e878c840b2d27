// Package resource implements an independently scheduled, cached data source.
// Each Resource keeps its last successful value across failed or in-flight
// refreshes and exposes its state as a single Observation.
package resource

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"cryptopulse/internal/metrics"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusSucceeded Status = "succeeded"
)

// Observation is one atomic read of a resource. Value is meaningful only when
// HasValue is true; Err is set only when Status is StatusFailed.
type Observation[T any] struct {
	Status    Status
	Value     T
	HasValue  bool
	IsStale   bool
	Err       error
	FetchedAt time.Time
}

// Usable reports whether a last-known value exists, whatever the current status.
func (o Observation[T]) Usable() bool {
	return o.HasValue
}

type FetchFunc[T any] func(ctx context.Context) (T, error)

type Options struct {
	// StaleTime is how long a successful value stays fresh. Zero means a value
	// is stale as soon as it arrives.
	StaleTime time.Duration
	Retry     RetryConfig
	Breaker   BreakerConfig
	Now       func() time.Time
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
}

type Resource[T any] struct {
	name    string
	fetch   FetchFunc[T]
	opts    Options
	breaker *gobreaker.CircuitBreaker[T]
	log     zerolog.Logger

	mu        sync.RWMutex
	status    Status
	value     T
	hasValue  bool
	fetchedAt time.Time
	err       error
	inflight  chan struct{}
	staleAt   *time.Timer

	subMu sync.Mutex
	subs  []func()
}

func New[T any](name string, fetch FetchFunc[T], opts Options) *Resource[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Breaker == (BreakerConfig{}) {
		opts.Breaker = DefaultBreakerConfig
	}
	log := opts.Log.With().Str("component", "resource").Str("resource", name).Logger()
	return &Resource[T]{
		name:    name,
		fetch:   fetch,
		opts:    opts,
		breaker: newBreaker[T](name, opts.Breaker, log, opts.Metrics),
		log:     log,
		status:  StatusPending,
	}
}

func (r *Resource[T]) Name() string {
	return r.name
}

// Subscribe registers fn to be called after every status or value change,
// and when a value crosses its stale time.
// fn runs on the refreshing goroutine and must not block.
func (r *Resource[T]) Subscribe(fn func()) {
	r.subMu.Lock()
	r.subs = append(r.subs, fn)
	r.subMu.Unlock()
}

func (r *Resource[T]) notify() {
	r.subMu.Lock()
	subs := make([]func(), len(r.subs))
	copy(subs, r.subs)
	r.subMu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// armStaleTimer schedules a notification for the moment the current value
// turns stale, replacing the timer of the previous value. Callers hold r.mu.
func (r *Resource[T]) armStaleTimer() {
	if r.staleAt != nil {
		r.staleAt.Stop()
		r.staleAt = nil
	}
	if r.opts.StaleTime > 0 {
		r.staleAt = time.AfterFunc(r.opts.StaleTime, r.notify)
	}
}

// Observe returns the current status, value and staleness as one snapshot.
func (r *Resource[T]) Observe() Observation[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs := Observation[T]{
		Status:    r.status,
		Value:     r.value,
		HasValue:  r.hasValue,
		FetchedAt: r.fetchedAt,
	}
	if r.hasValue {
		obs.IsStale = !r.opts.Now().Before(r.fetchedAt.Add(r.opts.StaleTime))
	}
	if r.status == StatusFailed {
		obs.Err = r.err
	}
	r.opts.Metrics.SetStale(r.name, obs.IsStale)
	return obs
}

// Refresh fetches a new value. A refresh that starts while another is in
// flight waits for that one and returns its result.
func (r *Resource[T]) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.inflight != nil {
		wait := r.inflight
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.status == StatusFailed {
			return r.err
		}
		return nil
	}
	done := make(chan struct{})
	r.inflight = done
	r.status = StatusPending
	r.mu.Unlock()
	r.notify()

	start := time.Now()
	var value T
	err := WithRetry(ctx, r.opts.Retry, r.log, func(err error) bool { return !breakerRejected(err) }, func() error {
		v, err := r.breaker.Execute(func() (T, error) {
			return r.fetch(ctx)
		})
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	r.opts.Metrics.ObserveFetch(r.name, time.Since(start), err)

	r.mu.Lock()
	if err != nil {
		r.status = StatusFailed
		r.err = err
		r.log.Error().Err(err).Bool("has_fallback", r.hasValue).Msg("refresh failed")
	} else {
		r.status = StatusSucceeded
		r.value = value
		r.hasValue = true
		r.fetchedAt = r.opts.Now()
		r.err = nil
		r.armStaleTimer()
		r.log.Debug().Msg("refresh succeeded")
	}
	r.inflight = nil
	close(done)
	r.mu.Unlock()
	r.notify()

	return err
}
