package market

import (
	"maps"
	"time"
)

// Direction of a signal or position.
type Direction int8

const (
	Flat  Direction = 0
	Long  Direction = +1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Sign is +1, -1 or 0.
func (d Direction) Sign() float64 { return float64(d) }

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "long", "bullish", "LONG":
		*d = Long
	case "short", "bearish", "SHORT":
		*d = Short
	default:
		*d = Flat
	}
	return nil
}

// Trend is a direction plus a strength in [0, 1] for one timeframe.
type Trend struct {
	Timeframe string    `json:"timeframe"`
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
}

// Sentiment is the broad-market context for a symbol, in percent change.
type Sentiment struct {
	IndexChangePct  float64 `json:"index_change_pct"`
	SectorChangePct float64 `json:"sector_change_pct"`
}

// Well-known indicator value names. Snapshots may carry any others.
const (
	RSI        = "rsi"
	StochK     = "stoch_k"
	StochD     = "stoch_d"
	MACD       = "macd"
	MACDSignal = "macd_signal"
	BBUpper    = "bb_upper"
	BBLower    = "bb_lower"
	EMAFast    = "ema_9"
	EMAMid     = "ema_21"
	EMASlow    = "ema_50"
	SMA20      = "sma_20"
	SMA50      = "sma_50"
	VolumeSMA  = "volume_sma"
)

// Snapshot is the indicator bundle for one symbol at one tick. It is treated
// as immutable once built; use Clone before changing anything.
type Snapshot struct {
	Symbol      string             `json:"symbol"`
	Time        time.Time          `json:"time"`
	Price       float64            `json:"price"`
	ATR         float64            `json:"atr"`
	Volume      float64            `json:"volume"`
	VolumeSurge bool               `json:"volume_surge"`
	Volatility  float64            `json:"volatility"` // stdev of recent bar returns
	Bars        int                `json:"bars"`
	Values      map[string]float64 `json:"values"`
	Trends      []Trend            `json:"trends"`
	Sentiment   Sentiment          `json:"sentiment"`
}

// Value returns a named indicator value.
func (s Snapshot) Value(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Values = maps.Clone(s.Values)
	out.Trends = append([]Trend(nil), s.Trends...)
	return out
}
