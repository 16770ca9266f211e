package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/intraday/internal/errs"
	"github.com/rustyeddy/intraday/market"
)

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func limits() Limits {
	return Limits{MaxPortfolioExposure: 0.8, MaxDailyTrades: 10}
}

func long(sym string, size, entry float64) Position {
	return Position{
		ID: "id-" + sym, Symbol: sym, Sector: market.SectorOf(sym), Direction: market.Long, Status: Pending,
		Size: size, EntryPrice: entry, StopLoss: entry - 20, TakeProfit: entry + 30,
	}
}

func short(sym string, size, entry float64) Position {
	p := long(sym, size, entry)
	p.Direction = market.Short
	p.StopLoss, p.TakeProfit = entry+20, entry-30
	return p
}

func open(t *testing.T, l *Ledger, p Position) {
	t.Helper()
	require.NoError(t, l.Reserve(p))
	_, err := l.Confirm(p.Symbol, p.EntryPrice, now)
	require.NoError(t, err)
}

func TestReserveConfirmCancel(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	require.NoError(t, l.Reserve(long("SBIN.NS", 100, 500)))

	s := l.Snapshot()
	assert.Equal(t, 950_000.0, s.Cash)
	assert.Equal(t, 50_000.0, s.Exposure)
	assert.Equal(t, 50_000.0, s.SectorExposure["BANKING"])
	assert.Equal(t, 0, s.TradesToday)
	assert.True(t, s.Holds("SBIN.NS"))

	p, err := l.Cancel("SBIN.NS", "broker down", now)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, p.Status)

	s = l.Snapshot()
	assert.Equal(t, 1_000_000.0, s.Cash)
	assert.False(t, s.Holds("SBIN.NS"))
	assert.Equal(t, 1, s.ClosedCount)
	require.NoError(t, l.Verify())

	open(t, l, long("TCS.NS", 10, 3000))
	got, ok := l.Position("TCS.NS")
	require.True(t, ok)
	assert.Equal(t, Open, got.Status)
	assert.Equal(t, now, got.EntryTime)
	assert.Equal(t, 1, l.Snapshot().TradesToday)
}

func TestReserveRejectsBadPositions(t *testing.T) {
	t.Parallel()

	l := NewLedger(10_000, limits())

	bad := long("A", 10, 100)
	bad.StopLoss = 0
	assert.True(t, errors.Is(l.Reserve(bad), errs.ErrStateCorruption))

	big := long("B", 1000, 100)
	assert.Error(t, l.Reserve(big))

	require.NoError(t, l.Reserve(long("C", 10, 100)))
	assert.Error(t, l.Reserve(long("C", 10, 100)), "one position per symbol")

	p := long("D", 10, 100)
	p.Status = Open
	assert.Error(t, l.Reserve(p))
}

func TestConfirmShiftsBracketWithFill(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	require.NoError(t, l.Reserve(long("X", 100, 500)))

	p, err := l.Confirm("X", 501, now)
	require.NoError(t, err)
	assert.Equal(t, 501.0, p.EntryPrice)
	assert.Equal(t, 481.0, p.StopLoss)
	assert.Equal(t, 531.0, p.TakeProfit)
	assert.InDelta(t, 1_000_000-50_100, l.Snapshot().Cash, 1e-9)
	require.NoError(t, l.Verify())
}

func TestCloseRealizesPnL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pos    Position
		price  float64
		status Status
		pnl    float64
	}{
		{"long target", long("L", 100, 500), 530, ClosedTarget, 3000},
		{"long stop", long("L", 100, 500), 480, ClosedStop, -2000},
		{"short target", short("S", 100, 500), 470, ClosedTarget, 3000},
		{"short stop", short("S", 100, 500), 520, ClosedStop, -2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := NewLedger(1_000_000, limits())
			open(t, l, tt.pos)

			p, err := l.Close(tt.pos.Symbol, tt.status, tt.price, now.Add(time.Hour), "")
			require.NoError(t, err)
			assert.Equal(t, tt.status, p.Status)
			assert.InDelta(t, tt.pnl, p.RealizedPnL, 1e-9)

			s := l.Snapshot()
			assert.InDelta(t, 1_000_000+tt.pnl, s.Cash, 1e-9)
			assert.InDelta(t, 1_000_000+tt.pnl, s.Balance, 1e-9)
			assert.InDelta(t, tt.pnl, s.DayRealizedPnL, 1e-9)
			assert.Empty(t, s.Positions)
			assert.Zero(t, s.Exposure)
			if tt.pnl < 0 {
				assert.InDelta(t, -tt.pnl, s.DailyLoss, 1e-9)
			} else {
				assert.Zero(t, s.DailyLoss)
			}
			require.NoError(t, l.Verify())

			closed := l.Closed(0)
			require.Len(t, closed, 1)
			assert.Equal(t, tt.price, closed[0].ExitPrice)
		})
	}
}

func TestCloseIsAllOrNothing(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	open(t, l, long("X", 100, 500))
	before := l.Snapshot()

	_, err := l.Close("X", ClosedStop, 0, now, "")
	require.Error(t, err)
	_, err = l.Close("X", Open, 490, now, "")
	require.Error(t, err)
	_, err = l.Close("MISSING", ClosedStop, 490, now, "")
	require.Error(t, err)

	assert.Equal(t, before, l.Snapshot())
}

func TestCloseRejectsPending(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	require.NoError(t, l.Reserve(long("X", 100, 500)))
	_, err := l.Close("X", ClosedManual, 500, now, "")
	assert.True(t, errors.Is(err, errs.ErrStateCorruption))
}

func TestMarkAndDrawdown(t *testing.T) {
	t.Parallel()

	l := NewLedger(100_000, limits())
	open(t, l, long("X", 100, 500))

	l.Mark("X", 510, now)
	s := l.Snapshot()
	assert.InDelta(t, 1000, s.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 101_000, s.Equity, 1e-9)
	assert.InDelta(t, 101_000, s.PeakEquity, 1e-9)

	l.Mark("X", 490, now.Add(time.Minute))
	s = l.Snapshot()
	assert.InDelta(t, 99_000, s.Equity, 1e-9)
	assert.InDelta(t, 2000.0/101_000, s.Drawdown, 1e-9)
	assert.InDelta(t, 2000.0/101_000, s.MaxDrawdown, 1e-9)
	assert.Equal(t, now.Add(time.Minute), s.Time)
}

func TestResetSession(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	assert.True(t, l.ResetSession("2024-03-04"))
	open(t, l, long("X", 100, 500))
	_, err := l.Close("X", ClosedStop, 480, now, "")
	require.NoError(t, err)
	l.Halt("daily loss limit reached")
	l.Halt("ignored")

	halted, reason := l.Halted()
	assert.True(t, halted)
	assert.Equal(t, "daily loss limit reached", reason)

	assert.False(t, l.ResetSession("2024-03-04"))
	assert.True(t, l.ResetSession("2024-03-05"))

	s := l.Snapshot()
	assert.Zero(t, s.TradesToday)
	assert.Zero(t, s.DailyLoss)
	assert.False(t, s.Halted)
	assert.InDelta(t, -2000, s.RealizedPnL, 1e-9)
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	open(t, l, long("X", 100, 500))

	s := l.Snapshot()
	s.Positions[0].StopLoss = 1
	s.SectorExposure["OTHERS"] = 0

	p, _ := l.Position("X")
	assert.Equal(t, 480.0, p.StopLoss)
	assert.Equal(t, 50_000.0, l.Snapshot().SectorExposure["OTHERS"])
}

func TestVerifyCatchesCorruption(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, limits())
	open(t, l, long("X", 100, 500))
	require.NoError(t, l.Verify())

	l.positions["X"].TakeProfit = 0
	err := l.Verify()
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))

	l.positions["X"].TakeProfit = 530
	l.cash += 100
	assert.Error(t, l.Verify())

	l.cash -= 100
	require.NoError(t, l.Verify())

	l.trades = 11
	assert.Error(t, l.Verify())
}

func TestVerifyAllowsDailyLossOvershoot(t *testing.T) {
	t.Parallel()

	// A slipped exit can realize more than the daily limit; that is a
	// breach for the engine to halt on, not a broken ledger.
	l := NewLedger(1_000_000, limits())
	open(t, l, long("X", 1000, 500))
	_, err := l.Close("X", ClosedTime, 439.5, now, "session cutoff")
	require.NoError(t, err)
	assert.Equal(t, 60_500.0, l.Snapshot().DailyLoss)
	assert.NoError(t, l.Verify())
}

func TestConfirmRejectsFillOverExposureCap(t *testing.T) {
	t.Parallel()

	l := NewLedger(1_000_000, Limits{MaxPortfolioExposure: 0.1})
	require.NoError(t, l.Reserve(long("X", 200, 500)))
	assert.Equal(t, 100_000.0, l.Snapshot().Exposure, "reserved exactly at the cap")

	_, err := l.Confirm("X", 500.5, now)
	require.Error(t, err)
	assert.Equal(t, errs.ExecutionFailed, errs.KindOf(err))
	assert.ErrorContains(t, err, "over cap")

	p, _ := l.Snapshot().Position("X")
	assert.Equal(t, Pending, p.Status, "a rejected fill leaves the reservation for the caller to cancel")
	require.NoError(t, l.Verify())

	// A favorable fill only lowers exposure.
	_, err = l.Confirm("X", 499.5, now)
	require.NoError(t, err)
	require.NoError(t, l.Verify())
}

func TestStatus(t *testing.T) {
	t.Parallel()

	assert.False(t, Pending.Terminal())
	assert.False(t, Open.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Cancelled.Closed())
	for _, s := range []Status{ClosedStop, ClosedTarget, ClosedSignal, ClosedTime, ClosedManual} {
		assert.True(t, s.Closed(), s)
	}
}

func TestTriggers(t *testing.T) {
	t.Parallel()

	l := long("X", 1, 500)
	assert.True(t, l.StopHit(480))
	assert.True(t, l.StopHit(470))
	assert.False(t, l.StopHit(481))
	assert.True(t, l.TargetHit(530))
	assert.False(t, l.TargetHit(529))

	s := short("X", 1, 500)
	assert.True(t, s.StopHit(520))
	assert.False(t, s.StopHit(519))
	assert.True(t, s.TargetHit(470))
	assert.False(t, s.TargetHit(471))
	assert.InDelta(t, 20, s.PlannedRisk(), 1e-9)
}
