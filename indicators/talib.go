package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/intraday/market"
)

// RSI is Wilder's relative strength index.
type RSI struct{ Period int }

func (c RSI) Name() string  { return fmt.Sprintf("rsi(%d)", c.Period) }
func (c RSI) Lookback() int { return c.Period + 1 }

func (c RSI) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	v, ok := last(talib.Rsi(s.Close, c.Period))
	if ok {
		out[market.RSI] = v
	}
	return ok
}

// Stochastic is the slow stochastic oscillator (%K, %D).
type Stochastic struct{ FastK, SlowK, SlowD int }

func (c Stochastic) Name() string {
	return fmt.Sprintf("stoch(%d,%d,%d)", c.FastK, c.SlowK, c.SlowD)
}
func (c Stochastic) Lookback() int { return c.FastK + c.SlowK + c.SlowD }

func (c Stochastic) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	k, d := talib.Stoch(s.High, s.Low, s.Close, c.FastK, c.SlowK, talib.SMA, c.SlowD, talib.SMA)
	kv, ok1 := last(k)
	dv, ok2 := last(d)
	if !ok1 || !ok2 {
		return false
	}
	out[market.StochK] = kv
	out[market.StochD] = dv
	return true
}

type MACD struct{ Fast, Slow, Signal int }

func (c MACD) Name() string  { return fmt.Sprintf("macd(%d,%d,%d)", c.Fast, c.Slow, c.Signal) }
func (c MACD) Lookback() int { return c.Slow + c.Signal }

func (c MACD) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	m, sig, _ := talib.Macd(s.Close, c.Fast, c.Slow, c.Signal)
	mv, ok1 := last(m)
	sv, ok2 := last(sig)
	if !ok1 || !ok2 {
		return false
	}
	out[market.MACD] = mv
	out[market.MACDSignal] = sv
	return true
}

// Bollinger bands over an SMA.
type Bollinger struct {
	Period int
	Dev    float64
}

func (c Bollinger) Name() string  { return fmt.Sprintf("bbands(%d,%g)", c.Period, c.Dev) }
func (c Bollinger) Lookback() int { return c.Period }

func (c Bollinger) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	upper, _, lower := talib.BBands(s.Close, c.Period, c.Dev, c.Dev, talib.SMA)
	uv, ok1 := last(upper)
	lv, ok2 := last(lower)
	if !ok1 || !ok2 {
		return false
	}
	out[market.BBUpper] = uv
	out[market.BBLower] = lv
	return true
}

// EMA of closes written under Key.
type EMA struct {
	Period int
	Key    string
}

func (c EMA) Name() string  { return fmt.Sprintf("ema(%d)", c.Period) }
func (c EMA) Lookback() int { return c.Period }

func (c EMA) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	v, ok := last(talib.Ema(s.Close, c.Period))
	if ok {
		out[c.Key] = v
	}
	return ok
}

// SMA of closes written under Key.
type SMA struct {
	Period int
	Key    string
}

func (c SMA) Name() string  { return fmt.Sprintf("sma(%d)", c.Period) }
func (c SMA) Lookback() int { return c.Period }

func (c SMA) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	v, ok := last(talib.Sma(s.Close, c.Period))
	if ok {
		out[c.Key] = v
	}
	return ok
}

// ATR is Wilder's average true range.
type ATR struct{ Period int }

// ATRKey is the value name ATR writes.
const ATRKey = "atr"

func (c ATR) Name() string  { return fmt.Sprintf("atr(%d)", c.Period) }
func (c ATR) Lookback() int { return c.Period + 1 }

func (c ATR) Compute(s market.Series, out Values) bool {
	if len(s.Close) < c.Lookback() {
		return false
	}
	v, ok := last(talib.Atr(s.High, s.Low, s.Close, c.Period))
	if ok && v > 0 {
		out[ATRKey] = v
		return true
	}
	return false
}

// VolumeSMA is the simple average of volume including the current bar.
type VolumeSMA struct{ Period int }

func (c VolumeSMA) Name() string  { return fmt.Sprintf("volume_sma(%d)", c.Period) }
func (c VolumeSMA) Lookback() int { return c.Period }

func (c VolumeSMA) Compute(s market.Series, out Values) bool {
	if len(s.Volume) < c.Lookback() {
		return false
	}
	v, ok := last(talib.Sma(s.Volume, c.Period))
	if ok {
		out[market.VolumeSMA] = v
	}
	return ok
}
