// Package signal scores indicator snapshots into directional signals.
package signal

import (
	"math"
	"time"

	"github.com/rustyeddy/intraday/market"
)

// Score bounds.
const MaxScore = 100

// Flat signal reasons.
const (
	ReasonInsufficientHistory = "insufficient history"
	ReasonNoPrice             = "no price"
	ReasonBelowMinScore       = "below min score"
	ReasonNoVolumeSurge       = "no volume surge"
	ReasonSentimentVeto       = "market sentiment veto"
)

// Factors are the normalized contributions, each in [-1, 1].
type Factors struct {
	Momentum  float64 `json:"momentum"`
	Trend     float64 `json:"trend"`
	Volume    float64 `json:"volume"`
	Sentiment float64 `json:"sentiment"`
}

// Signal is the scorer output for one snapshot.
type Signal struct {
	Symbol    string           `json:"symbol"`
	Time      time.Time        `json:"time"`
	Direction market.Direction `json:"direction"`
	Score     float64          `json:"score"` // [-100, 100]
	Factors   Factors          `json:"factors"`
	Reason    string           `json:"reason,omitempty"` // set when Direction is Flat

	Price       float64 `json:"price"`
	ATR         float64 `json:"atr"`
	Volume      float64 `json:"volume"`
	VolumeSurge bool    `json:"volume_surge"`
}

// Strength is the absolute score.
func (s Signal) Strength() float64 { return math.Abs(s.Score) }

type Weights struct {
	Momentum  float64 `json:"momentum" yaml:"momentum"`
	Trend     float64 `json:"trend" yaml:"trend"`
	Volume    float64 `json:"volume" yaml:"volume"`
	Sentiment float64 `json:"sentiment" yaml:"sentiment"`
}

func DefaultWeights() Weights {
	return Weights{Momentum: 0.40, Trend: 0.30, Volume: 0.15, Sentiment: 0.15}
}

func (w Weights) sum() float64 { return w.Momentum + w.Trend + w.Volume + w.Sentiment }

type Config struct {
	Weights Weights

	// MinScore is the |score| below which the signal is flat.
	MinScore float64

	// MinBars is the history needed for a full snapshot.
	MinBars int

	// RequireVolumeSurge gates every signal on the surge flag.
	RequireVolumeSurge bool

	// SentimentVetoPct blocks longs when the index is down more than this
	// percent, and shorts when it is up more. Zero disables the veto.
	SentimentVetoPct float64

	// SentimentScalePct is the percent move that maps to a full sentiment
	// factor. Defaults to 1.
	SentimentScalePct float64
}

// Scorer is pure: the same snapshot always yields the same Signal.
type Scorer struct {
	cfg   Config
	rules []Rule
}

// NewScorer builds a scorer. With no rules it uses DefaultRules.
func NewScorer(cfg Config, rules ...Rule) *Scorer {
	if cfg.Weights.sum() <= 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.SentimentScalePct <= 0 {
		cfg.SentimentScalePct = 1
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Scorer{cfg: cfg, rules: rules}
}

func (sc *Scorer) Score(s market.Snapshot) Signal {
	sig := Signal{
		Symbol:      s.Symbol,
		Time:        s.Time,
		Price:       s.Price,
		ATR:         s.ATR,
		Volume:      s.Volume,
		VolumeSurge: s.VolumeSurge,
	}
	if s.Bars < sc.cfg.MinBars {
		sig.Reason = ReasonInsufficientHistory
		return sig
	}
	if s.Price <= 0 {
		sig.Reason = ReasonNoPrice
		return sig
	}

	f := Factors{
		Momentum:  sc.momentum(s),
		Trend:     trend(s.Trends),
		Sentiment: clamp((s.Sentiment.IndexChangePct+s.Sentiment.SectorChangePct)/2/sc.cfg.SentimentScalePct, -1, 1),
	}

	// Volume confirms whichever way the other factors lean.
	w := sc.cfg.Weights
	lean := w.Momentum*f.Momentum + w.Trend*f.Trend + w.Sentiment*f.Sentiment
	if s.VolumeSurge && lean != 0 {
		f.Volume = math.Copysign(1, lean)
	}

	sig.Factors = f
	sig.Score = clamp(MaxScore*(lean+w.Volume*f.Volume)/w.sum(), -MaxScore, MaxScore)

	switch {
	case sig.Strength() < sc.cfg.MinScore || sig.Score == 0:
		sig.Reason = ReasonBelowMinScore
	case sc.cfg.RequireVolumeSurge && !s.VolumeSurge:
		sig.Reason = ReasonNoVolumeSurge
	case sc.vetoed(sig.Score, s.Sentiment):
		sig.Reason = ReasonSentimentVeto
	case sig.Score > 0:
		sig.Direction = market.Long
	default:
		sig.Direction = market.Short
	}
	return sig
}

func (sc *Scorer) momentum(s market.Snapshot) float64 {
	total, n := 0, 0
	for _, r := range sc.rules {
		v, ok := r.Vote(s)
		if !ok {
			continue
		}
		total += v
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

func (sc *Scorer) vetoed(score float64, sent market.Sentiment) bool {
	v := sc.cfg.SentimentVetoPct
	if v <= 0 {
		return false
	}
	if score > 0 && sent.IndexChangePct < -v {
		return true
	}
	return score < 0 && sent.IndexChangePct > v
}

func trend(ts []market.Trend) float64 {
	if len(ts) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range ts {
		sum += t.Direction.Sign() * clamp(t.Strength, 0, 1)
	}
	return sum / float64(len(ts))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
