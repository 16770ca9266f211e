// Package backtest replays historical candles through the live engine on a
// deterministic clock and summarizes the result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/broker/sim"
	"github.com/rustyeddy/intraday/engine"
	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/id"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/session"
)

// Runner drives an engine over Data between Start and End (inclusive
// dates in the session zone).
type Runner struct {
	Engine  engine.Options // Source, Executor and Journal are set by Run
	Data    *feed.CSVSource
	Paper   sim.Config
	Start   time.Time
	End     time.Time
	Dataset string

	// Store, when set, receives every record plus the run summary.
	Store *journal.SQLite
	Log   zerolog.Logger
}

// Run replays every in-session bar plus each day's cutoff, then summarizes.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	const op = "backtest.Run"
	if r.Data == nil {
		return Report{}, errs.Ef(errs.ConfigInvalid, op, "data is required")
	}
	if r.End.Before(r.Start) {
		return Report{}, errs.Ef(errs.ConfigInvalid, op, "end %s before start %s", r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}

	opts := r.Engine
	h := opts.Hours
	times := session.ReplayTimes(h, r.Data.Times(opts.Universe.Symbols()...), r.Start, r.End)
	if len(times) == 0 {
		return Report{}, errs.Ef(errs.DataUnavailable, op, "no bars between %s and %s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}

	mem := journal.NewMemory()
	opts.Source = r.Data
	opts.Executor = sim.NewPaper(r.Paper)
	opts.Journal = mem
	if r.Store != nil {
		opts.Journal = tee{mem, r.Store}
	}
	opts.Log = r.Log

	eng, err := engine.New(opts)
	if err != nil {
		return Report{}, err
	}
	clock := session.NewReplayClock(times)

	log := r.Log.With().Str("component", "backtest").Logger()
	log.Info().
		Str("start", r.Start.Format(time.DateOnly)).
		Str("end", r.End.Format(time.DateOnly)).
		Int("ticks", len(clock.Times())).
		Int("symbols", len(opts.Universe)).
		Msg("backtest started")

	if err := eng.Run(ctx, clock); err != nil {
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	rep := Report{
		Trades: mem.Trades(),
		Equity: mem.Equity(),
		Events: mem.Events(),
	}
	rep.Run = Summarize(opts.Capital, eng.State(), rep.Trades, rep.Equity, rep.Events, h)
	rep.Run.RunID = id.New()
	rep.Run.Created = time.Now().UTC()
	rep.Run.Dataset = r.Dataset
	rep.Run.Start, rep.Run.End = h.OpenAt(r.Start), h.CloseAt(r.End)
	rep.Run.Symbols = opts.Universe.Symbols()
	rep.Run.RiskPct = opts.Policy.RiskPerTrade
	rep.Run.StopATR = opts.Policy.StopATR
	rep.Run.TargetATR = opts.Policy.TargetATR

	if r.Store != nil {
		if err := r.Store.RecordRun(ctx, rep.Run); err != nil {
			return rep, err
		}
	}

	log.Info().
		Int("trades", rep.Run.Trades).
		Float64("return_pct", rep.Run.ReturnPct).
		Float64("sharpe", rep.Run.Sharpe).
		Float64("max_dd_pct", rep.Run.MaxDDPct).
		Int("breaches", rep.Run.Breaches).
		Msg("backtest finished")
	return rep, nil
}

// tee records to memory and to the persistent store, joining their errors.
type tee struct {
	mem   *journal.Memory
	store journal.Journal
}

func (t tee) RecordTrade(r journal.TradeRecord) error {
	return errors.Join(t.mem.RecordTrade(r), t.store.RecordTrade(r))
}

func (t tee) RecordEquity(e journal.EquitySnapshot) error {
	return errors.Join(t.mem.RecordEquity(e), t.store.RecordEquity(e))
}

func (t tee) RecordEvent(e journal.Event) error {
	return errors.Join(t.mem.RecordEvent(e), t.store.RecordEvent(e))
}

func (t tee) Close() error { return nil }
