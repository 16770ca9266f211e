// Package rank filters and orders signals into trade candidates.
package rank

import (
	"cmp"
	"math"
	"slices"

	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/signal"
)

// Candidate is a signal promoted by ranking.
type Candidate struct {
	signal.Signal
	Sector string `json:"sector"`
	Rank   int    `json:"rank"` // 1 is best
}

type Config struct {
	TopN      int     // 0 means no cap
	MinPrice  float64 // skip symbols trading below this
	MinVolume float64 // skip symbols with less current volume
}

// State is what the ranker needs to know about the account and universe.
type State struct {
	Universe market.Universe
	Open     map[string]bool // symbols with an open or pending position
}

type Ranker struct {
	cfg Config
}

func New(cfg Config) *Ranker { return &Ranker{cfg: cfg} }

// Rank drops flat signals, symbols already held and symbols failing the price
// or volume floor. The rest are ordered by |score| descending, then volume
// surge first, then symbol, and capped at TopN.
func (r *Ranker) Rank(signals []signal.Signal, st State) []Candidate {
	out := make([]Candidate, 0, len(signals))
	for _, s := range signals {
		if s.Direction == market.Flat || st.Open[s.Symbol] {
			continue
		}
		if r.cfg.MinPrice > 0 && s.Price < r.cfg.MinPrice {
			continue
		}
		if r.cfg.MinVolume > 0 && s.Volume < r.cfg.MinVolume {
			continue
		}
		out = append(out, Candidate{Signal: s, Sector: st.Universe.Sector(s.Symbol)})
	}

	slices.SortStableFunc(out, compare)

	// One candidate per symbol; the best one survives the sort.
	seen := make(map[string]bool, len(out))
	out = slices.DeleteFunc(out, func(c Candidate) bool {
		dup := seen[c.Symbol]
		seen[c.Symbol] = true
		return dup
	})

	if r.cfg.TopN > 0 && len(out) > r.cfg.TopN {
		out = out[:r.cfg.TopN]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func compare(a, b Candidate) int {
	if c := cmp.Compare(math.Abs(b.Score), math.Abs(a.Score)); c != 0 {
		return c
	}
	if a.VolumeSurge != b.VolumeSurge {
		if a.VolumeSurge {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Symbol, b.Symbol)
}
