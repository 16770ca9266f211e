// Package engine is the tick-driven trading loop. Step processes one tick to
// completion: fetch snapshots, run exits, then entries, then publish. Live
// trading and backtests drive the same Step from different clocks.
package engine

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/broker"
	"github.com/rustyeddy/intraday/feed"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/metrics"
	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/portfolio"
	"github.com/rustyeddy/intraday/position"
	"github.com/rustyeddy/intraday/publish"
	"github.com/rustyeddy/intraday/rank"
	"github.com/rustyeddy/intraday/risk"
	"github.com/rustyeddy/intraday/session"
	"github.com/rustyeddy/intraday/signal"
)

// Options wires an Engine. Source, Executor and Universe are required;
// Journal, Publisher and Metrics may be nil.
type Options struct {
	Capital  float64
	Hours    session.Hours
	Universe market.Universe

	Policy   risk.Policy
	Signal   signal.Config
	Rank     rank.Config
	Position position.Config

	// MaxOpenPositions stops entries for the tick once reached. Zero means
	// no cap beyond the risk limits.
	MaxOpenPositions int

	// CloseOnStop closes every OPEN position when Run is cancelled.
	CloseOnStop bool

	Source    feed.Source
	Executor  broker.Executor
	Journal   journal.Journal
	Publisher publish.Publisher
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

type Engine struct {
	opts      Options
	scorer    *signal.Scorer
	ranker    *rank.Ranker
	ledger    *portfolio.Ledger
	positions *position.Manager
	log       zerolog.Logger

	closedSeen    int
	sessionClosed bool
	lastPrices    map[string]float64
	lastTick      time.Time
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.Source == nil:
		return nil, errs.Ef(errs.ConfigInvalid, "engine.New", "snapshot source is required")
	case opts.Executor == nil:
		return nil, errs.Ef(errs.ConfigInvalid, "engine.New", "executor is required")
	case len(opts.Universe) == 0:
		return nil, errs.Ef(errs.ConfigInvalid, "engine.New", "universe is empty")
	case opts.Capital <= 0:
		return nil, errs.Ef(errs.ConfigInvalid, "engine.New", "capital must be positive")
	case opts.Hours.End <= opts.Hours.Start:
		return nil, errs.Ef(errs.ConfigInvalid, "engine.New", "session hours not set")
	}

	ledger := portfolio.NewLedger(opts.Capital, opts.Policy.Limits())
	return &Engine{
		opts:       opts,
		scorer:     signal.NewScorer(opts.Signal),
		ranker:     rank.New(opts.Rank),
		ledger:     ledger,
		positions:  position.NewManager(opts.Position, ledger, opts.Executor, opts.Log),
		log:        opts.Log.With().Str("component", "engine").Logger(),
		lastPrices: make(map[string]float64),
	}, nil
}

// State is an immutable snapshot of the ledger.
func (e *Engine) State() portfolio.State { return e.ledger.Snapshot() }

// Closed returns every terminal position so far.
func (e *Engine) Closed() []portfolio.Position { return e.ledger.Closed(0) }

// Report describes what one Step did.
type Report struct {
	Time        time.Time
	Idle        bool // outside the session with nothing to manage
	Skipped     []string
	Signals     []signal.Signal
	Candidates  []rank.Candidate
	Rejected    []risk.Decision
	Opened      []portfolio.Position
	Closed      []portfolio.Position
	Cancelled   []portfolio.Position
	FailedExits []string
	Halted      bool
	HaltReason  string
	Breach      error // RiskLimitBreached when this tick halted entries
	State       portfolio.State
}

// Step runs one tick at now. A returned error is fatal: the ledger failed an
// invariant or a transition could not be applied. Data and execution
// failures are absorbed, logged and reported.
func (e *Engine) Step(ctx context.Context, now time.Time) (Report, error) {
	started := time.Now()
	defer func() { e.opts.Metrics.ObserveTick(time.Since(started)) }()

	h := e.opts.Hours
	rep := Report{Time: now}
	e.ledger.SetTime(now)
	e.lastTick = now

	if h.TradingDay(now) && e.ledger.ResetSession(h.Date(now)) {
		e.sessionClosed = false
		e.event(ctx, journal.Event{Time: now, Kind: journal.EventSessionReset, Message: "session " + h.Date(now)})
	}

	inSession, over := h.InSession(now), h.PastCutoff(now)
	held := e.ledger.Positions()
	if !inSession && !(over && len(held) > 0) {
		if over && !e.sessionClosed {
			e.closeSession(ctx, now)
		}
		rep.Idle = true
		return e.finish(ctx, rep)
	}

	symbols := e.opts.Universe.Symbols()
	if !inSession {
		symbols = symbols[:0:0]
		for _, p := range held {
			symbols = append(symbols, p.Symbol)
		}
	}
	snaps := e.fetch(ctx, now, symbols, &rep)

	prices := make(map[string]float64, len(snaps))
	sigs := make(map[string]signal.Signal, len(snaps))
	for _, s := range snaps {
		prices[s.Symbol] = s.Price
		e.lastPrices[s.Symbol] = s.Price
		sig := e.scorer.Score(s)
		sigs[s.Symbol] = sig
		rep.Signals = append(rep.Signals, sig)
	}

	// Exits first so entries are sized against post-exit state.
	res, err := e.positions.Evaluate(ctx, position.Tick{Time: now, Prices: prices, Signals: sigs, SessionOver: over})
	if err != nil {
		return e.fatal(ctx, rep, err)
	}
	rep.FailedExits = res.FailedExits
	for _, sym := range res.FailedExits {
		e.opts.Metrics.Error(errs.ExecutionFailed.String())
		e.event(ctx, journal.Event{Time: now, Kind: journal.EventExitFailed, Symbol: sym, Message: "exit failed, retrying next tick"})
	}
	if over && len(e.ledger.Positions()) == 0 && !e.sessionClosed {
		e.closeSession(ctx, now)
	}

	rep.Breach = e.checkLimits(ctx, now)
	if halted, _ := e.ledger.Halted(); inSession && !halted {
		if err := e.enter(ctx, now, rep.Signals, &rep); err != nil {
			return e.fatal(ctx, rep, err)
		}
	}
	return e.finish(ctx, rep)
}

// Preview scores and ranks the universe at now and sizes every candidate
// against the current state. Nothing is opened and the ledger is untouched.
func (e *Engine) Preview(ctx context.Context, now time.Time) Report {
	rep := Report{Time: now}
	for _, s := range e.fetch(ctx, now, e.opts.Universe.Symbols(), &rep) {
		rep.Signals = append(rep.Signals, e.scorer.Score(s))
	}

	st := e.ledger.Snapshot()
	open := make(map[string]bool, len(st.Positions))
	for _, p := range st.Positions {
		open[p.Symbol] = true
	}
	rep.Candidates = e.ranker.Rank(rep.Signals, rank.State{Universe: e.opts.Universe, Open: open})
	for _, c := range rep.Candidates {
		if d := risk.Evaluate(e.opts.Policy, c, st); !d.Accepted {
			rep.Rejected = append(rep.Rejected, d)
		}
	}
	rep.State = st
	return rep
}

// Decisions sizes every candidate in rep against its state.
func (e *Engine) Decisions(rep Report) []risk.Decision {
	out := make([]risk.Decision, 0, len(rep.Candidates))
	for _, c := range rep.Candidates {
		out = append(out, risk.Evaluate(e.opts.Policy, c, rep.State))
	}
	return out
}

func (e *Engine) fetch(ctx context.Context, now time.Time, symbols []string, rep *Report) []market.Snapshot {
	out := make([]market.Snapshot, 0, len(symbols))
	for _, sym := range symbols {
		s, err := e.opts.Source.Snapshot(ctx, sym, now)
		if err != nil {
			reason := "data_unavailable"
			if errs.KindOf(err) != errs.DataUnavailable {
				reason = "error"
			}
			e.opts.Metrics.SkipSymbol(reason)
			e.log.Debug().Err(err).Str("symbol", sym).Msg("symbol skipped")
			rep.Skipped = append(rep.Skipped, sym)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) enter(ctx context.Context, now time.Time, sigs []signal.Signal, rep *Report) error {
	st := e.ledger.Snapshot()
	open := make(map[string]bool, len(st.Positions))
	for _, p := range st.Positions {
		open[p.Symbol] = true
	}
	rep.Candidates = e.ranker.Rank(sigs, rank.State{Universe: e.opts.Universe, Open: open})

	for _, c := range rep.Candidates {
		st = e.ledger.Snapshot()
		if e.opts.MaxOpenPositions > 0 && st.OpenCount() >= e.opts.MaxOpenPositions {
			break
		}

		d := risk.Evaluate(e.opts.Policy, c, st)
		code := ""
		if d.Violation != nil {
			code = d.Violation.Code
		}
		e.opts.Metrics.Decision(d.Accepted, code)

		if !d.Accepted {
			rep.Rejected = append(rep.Rejected, d)
			if d.LimitBreached() {
				rep.Breach = e.halt(ctx, now, code, d.Reason())
				break
			}
			e.log.Debug().Str("symbol", c.Symbol).Str("code", code).Str("reason", d.Reason()).Msg("candidate rejected")
			continue
		}

		p, err := e.positions.Open(ctx, d, now)
		switch {
		case err == nil:
			rep.Opened = append(rep.Opened, p)
		case errs.KindOf(err) == errs.ExecutionFailed:
			e.opts.Metrics.Error(errs.ExecutionFailed.String())
		default:
			return err
		}
	}
	return nil
}

// checkLimits halts entries as soon as a circuit breaker is at its limit,
// without waiting for a candidate to trip it.
// Realized loss may already be past the limit by the slippage on the
// closing fills.
func (e *Engine) checkLimits(ctx context.Context, now time.Time) error {
	if halted, _ := e.ledger.Halted(); halted {
		return nil
	}
	p, st := e.opts.Policy, e.ledger.Snapshot()
	switch {
	case p.MaxDailyLoss > 0 && st.DailyLoss >= p.MaxDailyLoss:
		return e.halt(ctx, now, risk.CodeDailyLoss, "daily loss limit reached")
	case p.MaxDailyTrades > 0 && st.TradesToday >= p.MaxDailyTrades:
		return e.halt(ctx, now, risk.CodeDailyTrades, "daily trade limit reached")
	}
	return nil
}

// halt stops entries for the rest of the session and returns the breach,
// or nil if entries were already halted.
func (e *Engine) halt(ctx context.Context, now time.Time, code, reason string) error {
	if halted, _ := e.ledger.Halted(); halted {
		return nil
	}
	err := errs.Ef(errs.RiskLimitBreached, "engine.halt", "%s: %s", code, reason)
	e.ledger.Halt(reason)
	e.opts.Metrics.Error(errs.RiskLimitBreached.String())
	e.log.Warn().Err(err).Str("code", code).Msg("entries halted for the session")
	e.event(ctx, journal.Event{Time: now, Kind: journal.EventBreach, Code: code, Message: reason})
	e.event(ctx, journal.Event{Time: now, Kind: journal.EventHalt, Code: code, Message: reason})
	return err
}

func (e *Engine) closeSession(ctx context.Context, now time.Time) {
	e.sessionClosed = true
	e.event(ctx, journal.Event{Time: now, Kind: journal.EventSessionClose, Message: "session " + e.opts.Hours.Date(now) + " closed"})
}

// finish records terminal positions, equity and state, then verifies the
// ledger.
func (e *Engine) finish(ctx context.Context, rep Report) (Report, error) {
	closed := e.ledger.Closed(e.closedSeen)
	e.closedSeen += len(closed)
	for _, p := range closed {
		if p.Status == portfolio.Cancelled {
			rep.Cancelled = append(rep.Cancelled, p)
		} else {
			rep.Closed = append(rep.Closed, p)
		}
		e.opts.Metrics.PositionClosed(p.Status)
		rec := journal.RecordFromPosition(p)
		e.sink("journal trade", e.journalDo(func(j journal.Journal) error { return j.RecordTrade(rec) }))
		e.sink("publish trade", e.publishDo(func(pub publish.Publisher) error { return pub.PublishTrade(ctx, rec) }))
	}

	rep.State = e.ledger.Snapshot()
	rep.Halted, rep.HaltReason = rep.State.Halted, rep.State.HaltReason
	e.opts.Metrics.SetState(rep.State)

	if !rep.Idle {
		eq := journal.EquityFromState(rep.State)
		e.sink("journal equity", e.journalDo(func(j journal.Journal) error { return j.RecordEquity(eq) }))
	}
	e.sink("publish state", e.publishDo(func(pub publish.Publisher) error { return pub.PublishState(ctx, rep.State) }))

	if err := e.ledger.Verify(); err != nil {
		return e.fatal(ctx, rep, err)
	}
	return rep, nil
}

func (e *Engine) fatal(ctx context.Context, rep Report, err error) (Report, error) {
	e.opts.Metrics.Error(errs.KindOf(err).String())
	e.log.Error().Err(err).Time("tick", rep.Time).Msg("fatal engine error")
	e.event(ctx, journal.Event{Time: rep.Time, Kind: journal.EventFatal, Message: err.Error()})
	if !errs.IsFatal(err) {
		err = errs.E(errs.StateCorruption, "engine.Step", err)
	}
	return rep, err
}

func (e *Engine) event(ctx context.Context, ev journal.Event) {
	e.sink("journal event", e.journalDo(func(j journal.Journal) error { return j.RecordEvent(ev) }))
	e.sink("publish event", e.publishDo(func(pub publish.Publisher) error { return pub.PublishEvent(ctx, ev) }))
}

func (e *Engine) journalDo(fn func(journal.Journal) error) error {
	if e.opts.Journal == nil {
		return nil
	}
	return fn(e.opts.Journal)
}

func (e *Engine) publishDo(fn func(publish.Publisher) error) error {
	if e.opts.Publisher == nil {
		return nil
	}
	return fn(e.opts.Publisher)
}

// sink logs a reporting failure. Reporting never stops trading.
func (e *Engine) sink(what string, err error) {
	if err == nil {
		return
	}
	e.opts.Metrics.Error("report")
	e.log.Warn().Err(err).Msg(what + " failed")
}

// Run steps on every tick from clock until ctx is cancelled or the clock
// closes. Cancellation takes effect between ticks; the in-flight tick runs to
// completion. With CloseOnStop set, OPEN positions are closed as
// CLOSED_MANUAL at the last known prices before Run returns.
func (e *Engine) Run(ctx context.Context, clock session.Clock) error {
	ticks := clock.Ticks(ctx)
	e.log.Info().Str("session", e.opts.Hours.String()).Int("symbols", len(e.opts.Universe)).Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			return e.stop(ctx)
		case now, ok := <-ticks:
			if !ok {
				return e.stop(ctx)
			}
			if ctx.Err() != nil {
				return e.stop(ctx)
			}
			if _, err := e.Step(context.WithoutCancel(ctx), now); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) stop(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if !e.opts.CloseOnStop || len(e.ledger.Positions()) == 0 {
		e.log.Info().Msg("engine stopped")
		return nil
	}

	at := e.lastTick
	if at.IsZero() {
		at = time.Now()
	}
	res, err := e.positions.CloseAll(ctx, portfolio.ClosedManual, maps.Clone(e.lastPrices), at, "engine stopped")
	if err != nil {
		return err
	}
	if _, err := e.finish(ctx, Report{Time: at, Idle: true}); err != nil {
		return err
	}
	e.log.Info().Int("closed", len(res.Closed)).Strs("failed", res.FailedExits).Msg("engine stopped")
	if len(res.FailedExits) > 0 {
		return errs.E(errs.ExecutionFailed, "engine.Stop", fmt.Errorf("positions left open: %v", res.FailedExits))
	}
	return nil
}
