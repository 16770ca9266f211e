package signal

import "github.com/rustyeddy/intraday/market"

// Rule is one momentum vote over a snapshot. Vote returns +1 (bullish),
// -1 (bearish) or 0, and false when the inputs it reads are missing.
type Rule interface {
	Name() string
	Vote(s market.Snapshot) (int, bool)
}

// DefaultRules is the oscillator set the scorer uses when none is given.
func DefaultRules() []Rule {
	return []Rule{
		RSIRule{Oversold: 30, Overbought: 70},
		StochRule{Oversold: 20, Overbought: 80},
		MACDRule{},
		BollingerRule{},
		EMACrossRule{},
	}
}

type RSIRule struct{ Oversold, Overbought float64 }

func (RSIRule) Name() string { return "rsi" }

func (r RSIRule) Vote(s market.Snapshot) (int, bool) {
	v, ok := s.Value(market.RSI)
	if !ok {
		return 0, false
	}
	switch {
	case v < r.Oversold:
		return 1, true
	case v > r.Overbought:
		return -1, true
	}
	return 0, true
}

// StochRule needs both %K and %D past a band.
type StochRule struct{ Oversold, Overbought float64 }

func (StochRule) Name() string { return "stochastic" }

func (r StochRule) Vote(s market.Snapshot) (int, bool) {
	k, ok1 := s.Value(market.StochK)
	d, ok2 := s.Value(market.StochD)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case k < r.Oversold && d < r.Oversold:
		return 1, true
	case k > r.Overbought && d > r.Overbought:
		return -1, true
	}
	return 0, true
}

type MACDRule struct{}

func (MACDRule) Name() string { return "macd" }

func (MACDRule) Vote(s market.Snapshot) (int, bool) {
	m, ok1 := s.Value(market.MACD)
	sig, ok2 := s.Value(market.MACDSignal)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case m > sig:
		return 1, true
	case m < sig:
		return -1, true
	}
	return 0, true
}

// BollingerRule votes for reversion when price touches a band.
type BollingerRule struct{}

func (BollingerRule) Name() string { return "bollinger" }

func (BollingerRule) Vote(s market.Snapshot) (int, bool) {
	up, ok1 := s.Value(market.BBUpper)
	lo, ok2 := s.Value(market.BBLower)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case s.Price <= lo:
		return 1, true
	case s.Price >= up:
		return -1, true
	}
	return 0, true
}

type EMACrossRule struct{}

func (EMACrossRule) Name() string { return "ema_cross" }

func (EMACrossRule) Vote(s market.Snapshot) (int, bool) {
	fast, ok1 := s.Value(market.EMAFast)
	mid, ok2 := s.Value(market.EMAMid)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case fast > mid:
		return 1, true
	case fast < mid:
		return -1, true
	}
	return 0, true
}
