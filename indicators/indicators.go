// Package indicators turns candle history into market.Snapshot values.
//
// Each indicator is a Contributor: it declares how much history it needs and
// writes one or more named values. A Registry holds the active set and a
// Builder runs them, so new indicators plug in without the scorer knowing
// about them.
package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/intraday/market"
)

// Values are named indicator outputs for the most recent bar.
type Values map[string]float64

// Contributor computes named values from a candle series.
// It is deterministic and must not retain the series.
type Contributor interface {
	// Name returns a stable identifier like "rsi(14)".
	Name() string

	// Lookback returns how many bars are needed before Compute can succeed.
	Lookback() int

	// Compute writes its values for the last bar into out. It returns false
	// when the series is too short or the result is not finite.
	Compute(s market.Series, out Values) bool
}

// Registry is an ordered set of contributors with unique names.
type Registry struct {
	list  []Contributor
	names map[string]struct{}
}

func NewRegistry(cs ...Contributor) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{})}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c. Names must be unique.
func (r *Registry) Register(c Contributor) error {
	if c == nil {
		return fmt.Errorf("indicators: nil contributor")
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, dup := r.names[c.Name()]; dup {
		return fmt.Errorf("indicators: duplicate contributor %q", c.Name())
	}
	r.names[c.Name()] = struct{}{}
	r.list = append(r.list, c)
	return nil
}

func (r *Registry) Contributors() []Contributor {
	return append([]Contributor(nil), r.list...)
}

// Lookback is the longest lookback across the registered contributors.
func (r *Registry) Lookback() int {
	n := 0
	for _, c := range r.list {
		n = max(n, c.Lookback())
	}
	return n
}

// Compute runs every contributor over s. Contributors that cannot produce a
// value are skipped.
func (r *Registry) Compute(s market.Series) Values {
	out := make(Values)
	for _, c := range r.list {
		if len(s.Close) < c.Lookback() {
			continue
		}
		c.Compute(s, out)
	}
	return out
}

// Default returns the standard contributor set used by the scorer.
func Default() *Registry {
	r, err := NewRegistry(
		RSI{Period: 14},
		Stochastic{FastK: 14, SlowK: 3, SlowD: 3},
		MACD{Fast: 12, Slow: 26, Signal: 9},
		Bollinger{Period: 20, Dev: 2},
		EMA{Period: 9, Key: market.EMAFast},
		EMA{Period: 21, Key: market.EMAMid},
		EMA{Period: 50, Key: market.EMASlow},
		SMA{Period: 20, Key: market.SMA20},
		SMA{Period: 50, Key: market.SMA50},
		ATR{Period: 14},
		VolumeSMA{Period: 20},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func last(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
