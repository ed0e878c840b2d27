package reconcile

import (
	"fmt"
	"time"

	"cryptopulse/internal/models"
)

// Kind names a SystemState variant.
type Kind string

const (
	KindLoading Kind = "loading"
	KindError   Kind = "error"
	KindEmpty   Kind = "empty"
	KindPartial Kind = "partial"
	KindStale   Kind = "stale"
	KindReady   Kind = "ready"
)

// SystemState is the closed set of application states. The unexported marker
// method keeps other packages from adding variants.
type SystemState interface {
	Kind() Kind
	systemState()
}

type Loading struct{}

type Error struct {
	Cause     error
	Retryable bool
}

type Empty struct{}

// Partial carries whichever raw resource value arrived. Exactly one of
// Holdings and Quotes is set.
type Partial struct {
	Holdings *models.HoldingsSnapshot
	Quotes   []models.PriceQuote
	Reason   string
}

type Stale struct {
	Assets     []models.EnrichedAsset
	Summary    models.PortfolioSummary
	StaleSince time.Time
}

type Ready struct {
	Assets  []models.EnrichedAsset
	Summary models.PortfolioSummary
}

func (Loading) Kind() Kind { return KindLoading }
func (Error) Kind() Kind   { return KindError }
func (Empty) Kind() Kind   { return KindEmpty }
func (Partial) Kind() Kind { return KindPartial }
func (Stale) Kind() Kind   { return KindStale }
func (Ready) Kind() Kind   { return KindReady }

func (Loading) systemState() {}
func (Error) systemState()   {}
func (Empty) systemState()   {}
func (Partial) systemState() {}
func (Stale) systemState()   {}
func (Ready) systemState()   {}

// Visitor handles every SystemState variant. Adding a variant adds a method
// here, so every implementation stops compiling until it handles it.
type Visitor[R any] interface {
	Loading(Loading) R
	Error(Error) R
	Empty(Empty) R
	Partial(Partial) R
	Stale(Stale) R
	Ready(Ready) R
}

// Match dispatches s to the visitor method for its variant. It panics on a nil
// or unknown state.
func Match[R any](s SystemState, v Visitor[R]) R {
	switch st := s.(type) {
	case Loading:
		return v.Loading(st)
	case Error:
		return v.Error(st)
	case Empty:
		return v.Empty(st)
	case Partial:
		return v.Partial(st)
	case Stale:
		return v.Stale(st)
	case Ready:
		return v.Ready(st)
	default:
		panic(fmt.Sprintf("reconcile: unhandled system state %T", s))
	}
}
