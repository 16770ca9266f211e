package indicators

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/market"
)

const (
	DefaultSurgeMultiple = 2.0
	volatilityWindow     = 20
	trendThreshold       = 0.3
)

// Builder produces snapshots from candle history. It stands in for an
// external indicator provider in backtest and analysis runs.
type Builder struct {
	Registry *Registry

	// SurgeMultiple is the volume / volume SMA ratio that counts as a surge.
	SurgeMultiple float64

	// Base is the width of the input candles, used to label the base trend.
	Base time.Duration

	// Higher adds a second trend reading from candles resampled to this
	// width. Zero disables it.
	Higher time.Duration
}

func NewBuilder(base, higher time.Duration) *Builder {
	return &Builder{
		Registry:      Default(),
		SurgeMultiple: DefaultSurgeMultiple,
		Base:          base,
		Higher:        higher,
	}
}

// Lookback is the bar count below which snapshots are incomplete.
func (b *Builder) Lookback() int { return b.registry().Lookback() }

// Build computes a snapshot from history, oldest first. The last candle is
// the current bar.
func (b *Builder) Build(symbol string, history []market.Candle, sent market.Sentiment) (market.Snapshot, error) {
	if len(history) == 0 {
		return market.Snapshot{}, errs.Ef(errs.DataUnavailable, "indicators.Build", "%s: no candles", symbol)
	}

	cur := history[len(history)-1]
	series := market.NewSeries(history)
	values := b.registry().Compute(series)

	snap := market.Snapshot{
		Symbol:    symbol,
		Time:      cur.Time,
		Price:     cur.Close,
		Volume:    cur.Volume,
		Bars:      len(history),
		Values:    map[string]float64(values),
		Sentiment: sent,
	}
	snap.ATR = values[ATRKey]
	snap.Volatility = returnVolatility(series.Close)

	if avg, ok := values[market.VolumeSMA]; ok && avg > 0 {
		mult := b.SurgeMultiple
		if mult <= 0 {
			mult = DefaultSurgeMultiple
		}
		snap.VolumeSurge = cur.Volume > mult*avg
	}

	snap.Trends = append(snap.Trends, Classify(label(b.Base), values, cur.Close))
	if b.Higher > 0 {
		hist := market.Resample(history, b.Higher)
		hv := b.registry().Compute(market.NewSeries(hist))
		snap.Trends = append(snap.Trends, Classify(label(b.Higher), hv, cur.Close))
	}
	return snap, nil
}

func (b *Builder) registry() *Registry {
	if b.Registry == nil {
		b.Registry = Default()
	}
	return b.Registry
}

// Classify reads the EMA stack, price against the SMA stack and the MACD
// sign. Each agreeing check votes +1 or -1; the mean of the votes beyond
// +/-0.3 sets the direction and its magnitude is the strength.
func Classify(timeframe string, v Values, price float64) market.Trend {
	votes, n := 0.0, 0

	e9, ok1 := v[market.EMAFast]
	e21, ok2 := v[market.EMAMid]
	e50, ok3 := v[market.EMASlow]
	if ok1 && ok2 && ok3 {
		switch {
		case e9 > e21 && e21 > e50:
			votes++
		case e9 < e21 && e21 < e50:
			votes--
		}
		n++
	}

	s20, ok1 := v[market.SMA20]
	s50, ok2 := v[market.SMA50]
	if ok1 && ok2 {
		switch {
		case price > s20 && s20 > s50:
			votes++
		case price < s20 && s20 < s50:
			votes--
		}
		n++
	}

	if m, ok := v[market.MACD]; ok {
		if m > 0 {
			votes++
		} else {
			votes--
		}
		n++
	}

	t := market.Trend{Timeframe: timeframe}
	if n == 0 {
		return t
	}
	score := votes / float64(n)
	t.Strength = math.Abs(score)
	switch {
	case score > trendThreshold:
		t.Direction = market.Long
	case score < -trendThreshold:
		t.Direction = market.Short
	}
	return t
}

func returnVolatility(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	start := max(1, len(closes)-volatilityWindow)
	rets := make([]float64, 0, len(closes)-start)
	for i := start; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}
	return stat.StdDev(rets, nil)
}

func label(d time.Duration) string {
	if d <= 0 {
		return "base"
	}
	return d.String()
}
