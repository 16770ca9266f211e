// Package feed supplies indicator snapshots to the engine.
//
// A Source returns the latest snapshot for a symbol as of a given time.
// Any failure to produce one is reported as errs.DataUnavailable so the
// engine can skip the symbol for that tick.
package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/retry"
	"github.com/rustyeddy/intraday/market"
)

type Source interface {
	Snapshot(ctx context.Context, symbol string, asOf time.Time) (market.Snapshot, error)
}

// Retrying bounds each fetch with a timeout and retries transient
// failures. A DataUnavailable answer from the source is final.
type Retrying struct {
	Next   Source
	Policy retry.Policy
	Log    zerolog.Logger
}

func NewRetrying(next Source, p retry.Policy, log zerolog.Logger) *Retrying {
	return &Retrying{Next: next, Policy: p, Log: log.With().Str("component", "feed").Logger()}
}

func (r *Retrying) Snapshot(ctx context.Context, symbol string, asOf time.Time) (market.Snapshot, error) {
	const op = "feed.Snapshot"
	log := r.Log.With().Str("symbol", symbol).Logger()
	s, err := retry.Do(ctx, r.Policy, log, op, func(ctx context.Context) (market.Snapshot, error) {
		s, err := r.Next.Snapshot(ctx, symbol, asOf)
		if errs.KindOf(err) == errs.DataUnavailable {
			return s, retry.Permanent(err)
		}
		return s, err
	})
	if err != nil {
		if errs.KindOf(err) == errs.DataUnavailable {
			return market.Snapshot{}, err
		}
		return market.Snapshot{}, errs.E(errs.DataUnavailable, op, err)
	}
	return s, nil
}
