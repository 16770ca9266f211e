// Package market holds the value types that flow through the decision loop:
// candles, indicator snapshots, directions and the tradable universe.
package market

import "time"

// Candle is one closed OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series splits candles into parallel slices in the layout indicator
// libraries expect.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

func NewSeries(candles []Candle) Series {
	s := Series{
		Open:   make([]float64, len(candles)),
		High:   make([]float64, len(candles)),
		Low:    make([]float64, len(candles)),
		Close:  make([]float64, len(candles)),
		Volume: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.Volume
	}
	return s
}

// Resample groups consecutive candles into bars of the given width, aligned
// to the width from midnight in the candle's location. Partial buckets are kept.
func Resample(candles []Candle, width time.Duration) []Candle {
	if width <= 0 || len(candles) == 0 {
		return nil
	}

	var out []Candle
	var cur Candle
	var bucket time.Time
	open := false

	for _, c := range candles {
		day := time.Date(c.Time.Year(), c.Time.Month(), c.Time.Day(), 0, 0, 0, 0, c.Time.Location())
		b := day.Add(c.Time.Sub(day).Truncate(width))
		if !open || !b.Equal(bucket) {
			if open {
				out = append(out, cur)
			}
			bucket = b
			cur = Candle{Time: b, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
			open = true
			continue
		}
		cur.High = max(cur.High, c.High)
		cur.Low = min(cur.Low, c.Low)
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if open {
		out = append(out, cur)
	}
	return out
}
