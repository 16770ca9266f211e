// Package position drives each position through its lifecycle:
//
//	PENDING -> OPEN -> CLOSED_STOP | CLOSED_TARGET | CLOSED_SIGNAL | CLOSED_TIME | CLOSED_MANUAL
//	PENDING -> CANCELLED
//
// The manager is the only writer of positions. Every transition is applied
// to the ledger in the same call that makes it.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/intraday/broker"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/internal/id"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/portfolio"
	"github.com/rustyeddy/intraday/risk"
	"github.com/rustyeddy/intraday/signal"
)

type Config struct {
	// ConfirmTimeout bounds an entry submit. A timeout cancels the position.
	ConfirmTimeout time.Duration

	// ExitOnReversal closes a position when a fresh signal points the other
	// way with at least ReversalMinScore strength.
	ExitOnReversal   bool
	ReversalMinScore float64
}

// Tick is the market view for one exit pass.
type Tick struct {
	Time        time.Time
	Prices      map[string]float64       // latest price; missing means no data this tick
	Signals     map[string]signal.Signal // optional, for reversal exits
	SessionOver bool                     // at or after the session cutoff
}

// Result reports what an exit pass did.
type Result struct {
	Closed       []portfolio.Position
	Cancelled    []portfolio.Position
	FailedExits  []string // symbols whose exit submit failed; retried next tick
	MissingPrice []string // open symbols with no price this tick
}

type Manager struct {
	cfg    Config
	ledger *portfolio.Ledger
	exec   broker.Executor
	log    zerolog.Logger
}

func NewManager(cfg Config, ledger *portfolio.Ledger, exec broker.Executor, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		ledger: ledger,
		exec:   exec,
		log:    log.With().Str("component", "position").Logger(),
	}
}

// Open materializes an accepted decision. The position is reserved as
// PENDING, submitted, then confirmed OPEN or CANCELLED. A failed or timed
// out submit returns an ExecutionFailed error; the ledger is left without
// the position either way.
func (m *Manager) Open(ctx context.Context, d risk.Decision, at time.Time) (portfolio.Position, error) {
	const op = "position.Open"
	if !d.Accepted {
		return portfolio.Position{}, fmt.Errorf("%s: decision for %s not accepted", op, d.Candidate.Symbol)
	}

	p := portfolio.Position{
		ID:         id.NewAt(at),
		Symbol:     d.Candidate.Symbol,
		Sector:     d.Candidate.Sector,
		Direction:  d.Candidate.Direction,
		Status:     portfolio.Pending,
		Size:       d.Size,
		EntryPrice: d.Entry,
		EntryTime:  at,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		Score:      d.Candidate.Score,
	}
	if err := m.ledger.Reserve(p); err != nil {
		return portfolio.Position{}, err
	}

	sctx, cancel := ctx, context.CancelFunc(func() {})
	if m.cfg.ConfirmTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, m.cfg.ConfirmTimeout)
	}
	fill, err := m.exec.SubmitEntry(sctx, broker.Order{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Size:       p.Size,
		Price:      p.EntryPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Time:       at,
	})
	cancel()

	if err != nil {
		reason := "execution failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "confirmation timeout"
		}
		if _, cerr := m.ledger.Cancel(p.Symbol, reason, at); cerr != nil {
			return portfolio.Position{}, cerr
		}
		m.log.Warn().Err(err).Str("symbol", p.Symbol).Str("id", p.ID).Str("reason", reason).Msg("entry cancelled")
		return portfolio.Position{}, errs.E(errs.ExecutionFailed, op, err)
	}

	opened, err := m.ledger.Confirm(p.Symbol, fill.Price, at)
	if err != nil {
		if _, cerr := m.ledger.Cancel(p.Symbol, err.Error(), at); cerr != nil {
			return portfolio.Position{}, cerr
		}
		m.unwind(ctx, p, fill, at)
		m.log.Warn().Err(err).Str("symbol", p.Symbol).Str("id", p.ID).Float64("fill", fill.Price).Msg("fill rejected, entry cancelled")
		return portfolio.Position{}, err
	}

	m.log.Info().
		Str("symbol", opened.Symbol).
		Str("id", opened.ID).
		Stringer("direction", opened.Direction).
		Float64("size", opened.Size).
		Float64("entry", opened.EntryPrice).
		Float64("stop", opened.StopLoss).
		Float64("target", opened.TakeProfit).
		Msg("position opened")
	return opened, nil
}

// unwind flattens a fill the ledger refused so the broker does not keep a
// position the ledger has cancelled.
func (m *Manager) unwind(ctx context.Context, p portfolio.Position, fill broker.Fill, at time.Time) {
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if m.cfg.ConfirmTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, m.cfg.ConfirmTimeout)
	}
	defer cancel()
	_, err := m.exec.SubmitExit(sctx, broker.Order{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Size:       p.Size,
		Price:      fill.Price,
		Time:       at,
		Reason:     "fill rejected",
	})
	if err != nil {
		m.log.Error().Err(err).Str("symbol", p.Symbol).Str("id", p.ID).Msg("unwind of rejected fill failed")
	}
}

// Evaluate runs one exit pass over every live position in symbol order.
// Each position gets at most one transition: stop, then target, then
// reversal, then the session cutoff. Only ledger corruption is returned as
// an error; execution failures leave the position OPEN for the next tick.
func (m *Manager) Evaluate(ctx context.Context, t Tick) (Result, error) {
	var res Result
	for _, p := range m.ledger.Positions() {
		if p.Status == portfolio.Pending {
			// Entries confirm within Open, so a leftover PENDING never got an answer.
			c, err := m.ledger.Cancel(p.Symbol, "confirmation timeout", t.Time)
			if err != nil {
				return res, err
			}
			res.Cancelled = append(res.Cancelled, c)
			continue
		}

		price, ok := t.Prices[p.Symbol]
		if ok && price > 0 {
			m.ledger.Mark(p.Symbol, price, t.Time)
		} else {
			ok = false
			res.MissingPrice = append(res.MissingPrice, p.Symbol)
		}

		status, exitPrice, reason := m.exitFor(p, price, ok, t)
		if status == "" {
			continue
		}

		closed, err := m.close(ctx, p, status, exitPrice, t.Time, reason)
		switch {
		case err == nil:
			res.Closed = append(res.Closed, closed)
		case errs.KindOf(err) == errs.ExecutionFailed:
			res.FailedExits = append(res.FailedExits, p.Symbol)
		default:
			return res, err
		}
	}
	return res, nil
}

func (m *Manager) exitFor(p portfolio.Position, price float64, ok bool, t Tick) (portfolio.Status, float64, string) {
	if ok {
		switch {
		case p.StopHit(price):
			return portfolio.ClosedStop, p.StopLoss, "stop loss"
		case p.TargetHit(price):
			return portfolio.ClosedTarget, p.TakeProfit, "take profit"
		}
		if m.cfg.ExitOnReversal {
			if s, has := t.Signals[p.Symbol]; has && s.Direction == -p.Direction && s.Direction != market.Flat && s.Strength() >= m.cfg.ReversalMinScore {
				return portfolio.ClosedSignal, price, fmt.Sprintf("signal reversed to %s", s.Direction)
			}
		}
	}
	if t.SessionOver {
		return portfolio.ClosedTime, forcedPrice(p, price, ok), "session end"
	}
	return "", 0, ""
}

// CloseManual closes an OPEN position on external request. A zero price
// uses the last mark, then the entry price.
func (m *Manager) CloseManual(ctx context.Context, symbol string, price float64, at time.Time, reason string) (portfolio.Position, error) {
	p, ok := m.ledger.Position(symbol)
	if !ok || p.Status != portfolio.Open {
		return portfolio.Position{}, errs.Ef(errs.ExecutionFailed, "position.CloseManual", "%s: no open position", symbol)
	}
	if reason == "" {
		reason = "manual"
	}
	return m.close(ctx, p, portfolio.ClosedManual, forcedPrice(p, price, price > 0), at, reason)
}

// CloseAll closes every OPEN position with status, using prices where
// available. Failed exits are reported and left OPEN.
func (m *Manager) CloseAll(ctx context.Context, status portfolio.Status, prices map[string]float64, at time.Time, reason string) (Result, error) {
	var res Result
	for _, p := range m.ledger.Positions() {
		if p.Status != portfolio.Open {
			continue
		}
		price, ok := prices[p.Symbol]
		closed, err := m.close(ctx, p, status, forcedPrice(p, price, ok && price > 0), at, reason)
		switch {
		case err == nil:
			res.Closed = append(res.Closed, closed)
		case errs.KindOf(err) == errs.ExecutionFailed:
			res.FailedExits = append(res.FailedExits, p.Symbol)
		default:
			return res, err
		}
	}
	return res, nil
}

func (m *Manager) close(ctx context.Context, p portfolio.Position, status portfolio.Status, price float64, at time.Time, reason string) (portfolio.Position, error) {
	fill, err := m.exec.SubmitExit(ctx, broker.Order{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Size:       p.Size,
		Price:      price,
		Time:       at,
		Reason:     string(status),
	})
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", p.Symbol).Str("id", p.ID).Str("status", string(status)).Msg("exit failed, retrying next tick")
		return portfolio.Position{}, errs.E(errs.ExecutionFailed, "position.close", err)
	}

	// Bracket exits book at the bracket level; discretionary exits at the fill.
	exit := price
	if status != portfolio.ClosedStop && status != portfolio.ClosedTarget && fill.Price > 0 {
		exit = fill.Price
	}

	closed, err := m.ledger.Close(p.Symbol, status, exit, at, reason)
	if err != nil {
		return portfolio.Position{}, err
	}
	m.log.Info().
		Str("symbol", closed.Symbol).
		Str("id", closed.ID).
		Str("status", string(closed.Status)).
		Float64("exit", closed.ExitPrice).
		Float64("pnl", closed.RealizedPnL).
		Msg("position closed")
	return closed, nil
}

func forcedPrice(p portfolio.Position, price float64, ok bool) float64 {
	switch {
	case ok && price > 0:
		return price
	case p.LastPrice > 0:
		return p.LastPrice
	default:
		return p.EntryPrice
	}
}
