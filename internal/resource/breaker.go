package resource

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"cryptopulse/internal/metrics"
)

type BreakerConfig struct {
	MaxRequests uint32        // requests allowed in half-open state
	Interval    time.Duration // closed-state count reset period
	Timeout     time.Duration // open-state duration before half-open
	MinRequests uint32
	FailureRate float64
}

var DefaultBreakerConfig = BreakerConfig{
	MaxRequests: 1,
	Interval:    time.Minute,
	Timeout:     30 * time.Second,
	MinRequests: 5,
	FailureRate: 0.5,
}

func newBreaker[T any](name string, cfg BreakerConfig, log zerolog.Logger, m *metrics.Metrics) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			m.SetBreakerState(name, stateToInt(to))
		},
	})
}

// breakerRejected reports errors raised by the breaker itself rather than by
// the upstream. They are not retried.
func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
