package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/intraday/broker/sim"
	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/portfolio"
	"github.com/rustyeddy/intraday/rank"
	"github.com/rustyeddy/intraday/risk"
	"github.com/rustyeddy/intraday/signal"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ledger *portfolio.Ledger
	paper  *sim.Paper
	mgr    *Manager
}

func newFixture(cfg Config, paper sim.Config) *fixture {
	l := portfolio.NewLedger(1_000_000, risk.DefaultPolicy().Limits())
	p := sim.NewPaper(paper)
	return &fixture{ledger: l, paper: p, mgr: NewManager(cfg, l, p, zerolog.Nop())}
}

func decision(sym string, dir market.Direction) risk.Decision {
	stop, target := risk.Bracket(dir, 500, 10, 2, 3)
	return risk.Decision{
		Candidate:  rank.Candidate{Signal: signal.Signal{Symbol: sym, Direction: dir, Score: 60, Price: 500, ATR: 10}, Sector: "IT"},
		Accepted:   true,
		Size:       100,
		Notional:   50_000,
		Entry:      500,
		StopLoss:   stop,
		TakeProfit: target,
	}
}

func (f *fixture) open(t *testing.T, sym string, dir market.Direction) portfolio.Position {
	t.Helper()
	p, err := f.mgr.Open(context.Background(), decision(sym, dir), t0)
	require.NoError(t, err)
	return p
}

func tick(at time.Time, prices map[string]float64) Tick {
	return Tick{Time: at, Prices: prices}
}

func TestOpenConfirms(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	p := f.open(t, "TCS.NS", market.Long)

	assert.Equal(t, portfolio.Open, p.Status)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 480.0, p.StopLoss)
	assert.Equal(t, 530.0, p.TakeProfit)

	st := f.ledger.Snapshot()
	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, 950_000.0, st.Cash)
	assert.Equal(t, 1, f.paper.OpenCount())
}

func TestOpenRejectsUnaccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	d := decision("TCS.NS", market.Long)
	d.Accepted = false
	_, err := f.mgr.Open(context.Background(), d, t0)
	require.Error(t, err)
	assert.Empty(t, f.ledger.Positions())
}

func TestOpenFailureCancels(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	f.paper.FailNext("TCS.NS", false, errors.New("gateway down"))

	_, err := f.mgr.Open(context.Background(), decision("TCS.NS", market.Long), t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExecutionFailed)
	assert.False(t, errs.IsFatal(err))

	st := f.ledger.Snapshot()
	assert.Empty(t, st.Positions)
	assert.Equal(t, 1_000_000.0, st.Cash)
	assert.Equal(t, 0, st.TradesToday)

	closed := f.ledger.Closed(0)
	require.Len(t, closed, 1)
	assert.Equal(t, portfolio.Cancelled, closed[0].Status)
	assert.Equal(t, "execution failed", closed[0].Reason)
}

func TestOpenSlippedFillOverCapCancelsAndUnwinds(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{SlippageBps: 10})
	d := decision("TCS.NS", market.Long)
	d.Size, d.Notional = 1600, 800_000 // exactly the 0.8 exposure cap

	_, err := f.mgr.Open(context.Background(), d, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExecutionFailed)
	assert.ErrorContains(t, err, "over cap")

	st := f.ledger.Snapshot()
	assert.Empty(t, st.Positions)
	assert.Equal(t, 1_000_000.0, st.Cash)
	assert.Zero(t, st.TradesToday)
	require.NoError(t, f.ledger.Verify())

	closed := f.ledger.Closed(0)
	require.Len(t, closed, 1)
	assert.Equal(t, portfolio.Cancelled, closed[0].Status)

	trades := f.paper.Trades()
	require.Len(t, trades, 1)
	assert.False(t, trades[0].Open)
	assert.Equal(t, "fill rejected", trades[0].Reason)
}

func TestOpenTimeoutCancels(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{ConfirmTimeout: 5 * time.Millisecond}, sim.Config{Latency: time.Second})

	_, err := f.mgr.Open(context.Background(), decision("TCS.NS", market.Long), t0)
	require.Error(t, err)

	closed := f.ledger.Closed(0)
	require.Len(t, closed, 1)
	assert.Equal(t, portfolio.Cancelled, closed[0].Status)
	assert.Equal(t, "confirmation timeout", closed[0].Reason)
}

func TestEvaluateExits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dir    market.Direction
		cfg    Config
		tick   Tick
		status portfolio.Status
		exit   float64
	}{
		{"long stop books at stop", market.Long, Config{}, tick(t0, map[string]float64{"X": 470}), portfolio.ClosedStop, 480},
		{"long target books at target", market.Long, Config{}, tick(t0, map[string]float64{"X": 535}), portfolio.ClosedTarget, 530},
		{"short stop", market.Short, Config{}, tick(t0, map[string]float64{"X": 521}), portfolio.ClosedStop, 520},
		{"short target", market.Short, Config{}, tick(t0, map[string]float64{"X": 470}), portfolio.ClosedTarget, 470},
		{
			name:   "stop beats session end",
			dir:    market.Long,
			tick:   Tick{Time: t0, Prices: map[string]float64{"X": 479}, SessionOver: true},
			status: portfolio.ClosedStop,
			exit:   480,
		},
		{
			name:   "session end at price",
			dir:    market.Long,
			tick:   Tick{Time: t0, Prices: map[string]float64{"X": 505}, SessionOver: true},
			status: portfolio.ClosedTime,
			exit:   505,
		},
		{
			name:   "session end without data uses entry",
			dir:    market.Long,
			tick:   Tick{Time: t0, SessionOver: true},
			status: portfolio.ClosedTime,
			exit:   500,
		},
		{
			name: "reversal",
			dir:  market.Long,
			cfg:  Config{ExitOnReversal: true, ReversalMinScore: 30},
			tick: Tick{
				Time:    t0,
				Prices:  map[string]float64{"X": 502},
				Signals: map[string]signal.Signal{"X": {Symbol: "X", Direction: market.Short, Score: -45}},
			},
			status: portfolio.ClosedSignal,
			exit:   502,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(tt.cfg, sim.Config{})
			f.open(t, "X", tt.dir)

			res, err := f.mgr.Evaluate(context.Background(), tt.tick)
			require.NoError(t, err)
			require.Len(t, res.Closed, 1)
			assert.Equal(t, tt.status, res.Closed[0].Status)
			assert.InDelta(t, tt.exit, res.Closed[0].ExitPrice, 1e-9)
			assert.Empty(t, f.ledger.Positions())
			require.NoError(t, f.ledger.Verify())
		})
	}
}

func TestEvaluateHolds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		tick Tick
	}{
		{"inside bracket", Config{}, tick(t0, map[string]float64{"X": 510})},
		{"no data", Config{}, tick(t0, nil)},
		{
			"reversal disabled",
			Config{},
			Tick{Time: t0, Prices: map[string]float64{"X": 502}, Signals: map[string]signal.Signal{"X": {Direction: market.Short, Score: -90}}},
		},
		{
			"weak reversal",
			Config{ExitOnReversal: true, ReversalMinScore: 50},
			Tick{Time: t0, Prices: map[string]float64{"X": 502}, Signals: map[string]signal.Signal{"X": {Direction: market.Short, Score: -40}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(tt.cfg, sim.Config{})
			f.open(t, "X", market.Long)

			res, err := f.mgr.Evaluate(context.Background(), tt.tick)
			require.NoError(t, err)
			assert.Empty(t, res.Closed)
			require.Len(t, f.ledger.Positions(), 1)
		})
	}
}

func TestEvaluateMarksAndReportsMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	f.open(t, "A", market.Long)
	f.open(t, "B", market.Long)

	res, err := f.mgr.Evaluate(context.Background(), tick(t0, map[string]float64{"A": 510}))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.MissingPrice)

	a, _ := f.ledger.Position("A")
	assert.Equal(t, 510.0, a.LastPrice)
	assert.InDelta(t, 1000, a.UnrealizedPnL, 1e-9)

	// Session end without a fresh price falls back to the last mark.
	res, err = f.mgr.Evaluate(context.Background(), Tick{Time: t0.Add(time.Hour), SessionOver: true})
	require.NoError(t, err)
	require.Len(t, res.Closed, 2)
	assert.Equal(t, 510.0, res.Closed[0].ExitPrice)
	assert.Equal(t, 500.0, res.Closed[1].ExitPrice)
}

func TestSessionEndClosesExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	for _, s := range []string{"A", "B", "C"} {
		f.open(t, s, market.Long)
	}

	end := Tick{Time: t0, Prices: map[string]float64{"A": 501, "B": 502, "C": 503}, SessionOver: true}
	res, err := f.mgr.Evaluate(context.Background(), end)
	require.NoError(t, err)
	require.Len(t, res.Closed, 3)
	for _, p := range res.Closed {
		assert.Equal(t, portfolio.ClosedTime, p.Status)
	}

	res, err = f.mgr.Evaluate(context.Background(), end)
	require.NoError(t, err)
	assert.Empty(t, res.Closed)
	assert.Len(t, f.ledger.Closed(0), 3)
}

func TestFailedExitRetriesNextTick(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	f.open(t, "X", market.Long)
	f.paper.FailNext("X", true, errors.New("gateway down"))

	stop := tick(t0, map[string]float64{"X": 470})
	res, err := f.mgr.Evaluate(context.Background(), stop)
	require.NoError(t, err)
	assert.Empty(t, res.Closed)
	assert.Equal(t, []string{"X"}, res.FailedExits)

	p, ok := f.ledger.Position("X")
	require.True(t, ok)
	assert.Equal(t, portfolio.Open, p.Status)
	require.NoError(t, f.ledger.Verify())

	res, err = f.mgr.Evaluate(context.Background(), stop)
	require.NoError(t, err)
	require.Len(t, res.Closed, 1)
	assert.Equal(t, portfolio.ClosedStop, res.Closed[0].Status)
}

func TestCloseManualAndCloseAll(t *testing.T) {
	t.Parallel()

	f := newFixture(Config{}, sim.Config{})
	f.open(t, "A", market.Long)
	f.open(t, "B", market.Short)
	f.open(t, "C", market.Long)

	p, err := f.mgr.CloseManual(context.Background(), "A", 512, t0, "")
	require.NoError(t, err)
	assert.Equal(t, portfolio.ClosedManual, p.Status)
	assert.InDelta(t, 1200, p.RealizedPnL, 1e-9)
	assert.Equal(t, "manual", p.Reason)

	_, err = f.mgr.CloseManual(context.Background(), "A", 512, t0, "")
	assert.ErrorIs(t, err, errs.ErrExecutionFailed)

	res, err := f.mgr.CloseAll(context.Background(), portfolio.ClosedManual, map[string]float64{"B": 490}, t0, "shutdown")
	require.NoError(t, err)
	require.Len(t, res.Closed, 2)
	assert.InDelta(t, 1000, res.Closed[0].RealizedPnL, 1e-9)
	assert.Zero(t, res.Closed[1].RealizedPnL)
	assert.Empty(t, f.ledger.Positions())
	assert.Equal(t, 0, f.paper.OpenCount())
}
