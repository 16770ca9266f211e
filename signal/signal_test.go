package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/intraday/market"
)

func bullish() market.Snapshot {
	return market.Snapshot{
		Symbol: "INFY.NS",
		Time:   time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Price:  100,
		ATR:    2,
		Volume: 2e6,
		Bars:   60,
		Values: map[string]float64{
			market.RSI:        25,
			market.StochK:     15,
			market.StochD:     18,
			market.MACD:       1,
			market.MACDSignal: 0.5,
			market.BBLower:    101,
			market.BBUpper:    120,
			market.EMAFast:    103,
			market.EMAMid:     102,
		},
		VolumeSurge: true,
		Trends:      []market.Trend{{Timeframe: "5m", Direction: market.Long, Strength: 1}},
		Sentiment:   market.Sentiment{IndexChangePct: 0.5, SectorChangePct: 0.5},
	}
}

func bearish() market.Snapshot {
	s := bullish()
	s.Values = map[string]float64{
		market.RSI:        75,
		market.StochK:     85,
		market.StochD:     90,
		market.MACD:       -1,
		market.MACDSignal: 0.5,
		market.BBLower:    80,
		market.BBUpper:    99,
		market.EMAFast:    101,
		market.EMAMid:     102,
	}
	s.Trends = []market.Trend{{Timeframe: "5m", Direction: market.Short, Strength: 1}}
	s.Sentiment = market.Sentiment{IndexChangePct: -0.5, SectorChangePct: -0.5}
	return s
}

func newScorer() *Scorer {
	return NewScorer(Config{MinScore: 30, MinBars: 50, SentimentVetoPct: 1})
}

type alwaysLong struct{}

func (alwaysLong) Name() string                     { return "always_long" }
func (alwaysLong) Vote(market.Snapshot) (int, bool) { return 1, true }

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		snap   func() market.Snapshot
		dir    market.Direction
		score  float64
		reason string
	}{
		{
			name:  "bullish with surge",
			snap:  bullish,
			dir:   market.Long,
			score: 92.5,
		},
		{
			name: "bullish without surge",
			snap: func() market.Snapshot {
				s := bullish()
				s.VolumeSurge = false
				return s
			},
			dir:   market.Long,
			score: 77.5,
		},
		{
			name:  "bearish with surge",
			snap:  bearish,
			dir:   market.Short,
			score: -92.5,
		},
		{
			name: "index selloff vetoes long",
			snap: func() market.Snapshot {
				s := bullish()
				s.Sentiment = market.Sentiment{IndexChangePct: -1.5}
				return s
			},
			dir:    market.Flat,
			score:  73.75,
			reason: ReasonSentimentVeto,
		},
		{
			name: "index rally vetoes short",
			snap: func() market.Snapshot {
				s := bearish()
				s.Sentiment = market.Sentiment{IndexChangePct: 1.5}
				return s
			},
			dir:    market.Flat,
			score:  -73.75,
			reason: ReasonSentimentVeto,
		},
		{
			name: "short history",
			snap: func() market.Snapshot {
				s := bullish()
				s.Bars = 10
				return s
			},
			dir:    market.Flat,
			reason: ReasonInsufficientHistory,
		},
		{
			name: "neutral",
			snap: func() market.Snapshot {
				return market.Snapshot{Symbol: "X", Price: 10, Bars: 60, Values: map[string]float64{market.RSI: 50}}
			},
			dir:    market.Flat,
			reason: ReasonBelowMinScore,
		},
		{
			name: "missing price",
			snap: func() market.Snapshot {
				s := bullish()
				s.Price = 0
				return s
			},
			dir:    market.Flat,
			reason: ReasonNoPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := newScorer().Score(tt.snap())
			assert.Equal(t, tt.dir, got.Direction)
			assert.InDelta(t, tt.score, got.Score, 1e-6)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestScoreRequiresSurge(t *testing.T) {
	t.Parallel()

	s := bullish()
	s.VolumeSurge = false

	sc := NewScorer(Config{MinScore: 30, RequireVolumeSurge: true})
	got := sc.Score(s)
	assert.Equal(t, market.Flat, got.Direction)
	assert.Equal(t, ReasonNoVolumeSurge, got.Reason)
}

func TestScoreIsIdempotent(t *testing.T) {
	t.Parallel()

	sc := newScorer()
	s := bullish()
	first := sc.Score(s)
	for range 5 {
		assert.Equal(t, first, sc.Score(s))
	}
}

func TestScoreBounded(t *testing.T) {
	t.Parallel()

	s := bullish()
	s.Sentiment = market.Sentiment{IndexChangePct: 50, SectorChangePct: 50}
	s.Trends = []market.Trend{{Direction: market.Long, Strength: 5}}

	got := NewScorer(Config{}).Score(s)
	assert.LessOrEqual(t, got.Score, float64(MaxScore))
	assert.GreaterOrEqual(t, got.Factors.Trend, -1.0)
	assert.LessOrEqual(t, got.Factors.Trend, 1.0)
}

func TestCustomRule(t *testing.T) {
	t.Parallel()

	sc := NewScorer(Config{MinScore: 30}, alwaysLong{})
	got := sc.Score(market.Snapshot{Symbol: "X", Price: 10})
	assert.Equal(t, market.Long, got.Direction)
	assert.InDelta(t, 40, got.Score, 1e-6)
	assert.Equal(t, 1.0, got.Factors.Momentum)
}
