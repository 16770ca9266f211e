package backtest

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/portfolio"
	"github.com/rustyeddy/intraday/session"
)

var nse = session.NSE()

func at(day, hour, min int) time.Time {
	return time.Date(2024, 3, day, hour, min, 0, 0, nse.Loc)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	trades := []journal.TradeRecord{
		{ID: "a", Status: "CLOSED_TARGET", RealizedPnL: 3000},
		{ID: "b", Status: "CLOSED_STOP", RealizedPnL: -1000},
		{ID: "c", Status: "CLOSED_TIME", RealizedPnL: 0},
		{ID: "d", Status: "CANCELLED"},
	}
	equity := []journal.EquitySnapshot{
		{Time: at(4, 10, 0), Equity: 1_000_500},
		{Time: at(4, 15, 30), Equity: 1_002_000},
		{Time: at(5, 15, 30), Equity: 1_001_000},
		{Time: at(6, 15, 30), Equity: 1_002_000},
	}
	events := []journal.Event{
		{Kind: journal.EventSessionReset},
		{Kind: journal.EventBreach},
		{Kind: journal.EventHalt},
	}
	final := portfolio.State{Equity: 1_002_000, MaxDrawdown: 0.001}

	run := Summarize(1_000_000, final, trades, equity, events, nse)
	assert.Equal(t, 3, run.Trades)
	assert.Equal(t, 1, run.Wins)
	assert.Equal(t, 1, run.Losses)
	assert.InDelta(t, 1.0/3, run.WinRate, 1e-9)
	assert.Equal(t, 3.0, run.ProfitFactor)
	assert.InDelta(t, 2000.0/3, run.AvgTrade, 1e-9)
	assert.Equal(t, 2000.0, run.NetPnL)
	assert.InDelta(t, 0.2, run.ReturnPct, 1e-9)
	assert.InDelta(t, 0.1, run.MaxDDPct, 1e-9)
	assert.Equal(t, 1, run.Breaches)
	assert.Equal(t, 3, run.TradingDays)
	assert.NotZero(t, run.Sharpe)
	assert.Empty(t, run.Notes)
}

func TestSummarizeNoLosses(t *testing.T) {
	t.Parallel()

	run := Summarize(100, portfolio.State{Equity: 110}, []journal.TradeRecord{{Status: "CLOSED_TARGET", RealizedPnL: 10}}, nil, nil, nse)
	assert.Zero(t, run.ProfitFactor)
	assert.Len(t, run.Notes, 1)
	assert.Zero(t, run.Sharpe)
}

func TestDailyEquity(t *testing.T) {
	t.Parallel()

	got := DailyEquity([]journal.EquitySnapshot{
		{Time: at(4, 10, 0), Equity: 1},
		{Time: at(4, 11, 0), Equity: 2},
		{Time: at(5, 10, 0), Equity: 3},
	}, nse)
	assert.Equal(t, []float64{2, 3}, got)
	assert.Nil(t, DailyEquity(nil, nse))
}

func TestSharpe(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Sharpe(nil))
	assert.Zero(t, Sharpe([]float64{100, 101}))
	assert.Zero(t, Sharpe([]float64{100, 100, 100}), "flat series has no variance")

	series := []float64{100, 101, 100, 102}
	rets := []float64{0.01, 100.0/101 - 1, 1.02 - 1}
	mean := (rets[0] + rets[1] + rets[2]) / 3
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := mean / math.Sqrt(ss/2) * math.Sqrt(252)
	assert.InDelta(t, want, Sharpe(series), 1e-9)
}

func TestReportWriters(t *testing.T) {
	t.Parallel()

	rep := Report{
		Run: journal.Run{
			RunID: "01HX", Start: at(4, 9, 15), End: at(5, 15, 30), TradingDays: 2,
			InitialCapital: 1_000_000, FinalEquity: 1_002_000, NetPnL: 2000, ReturnPct: 0.2,
			Trades: 2, Wins: 1, Losses: 1, Notes: []string{"hello"},
		},
		Trades: []journal.TradeRecord{{ID: "01HXTRADE00001", Symbol: "TCS.NS", Status: "CLOSED_STOP"}},
	}

	var buf bytes.Buffer
	require.NoError(t, rep.WriteSummary(&buf))
	out := buf.String()
	assert.Contains(t, out, "2024-03-04 .. 2024-03-05 (2 days)")
	assert.Contains(t, out, "2000.00 (0.20%)")
	assert.Contains(t, out, "Note")

	buf.Reset()
	require.NoError(t, rep.WriteJSON(&buf))
	var back Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "01HX", back.Run.RunID)
	assert.Len(t, back.Trades, 1)

	buf.Reset()
	require.NoError(t, rep.WriteOrg(&buf))
	assert.Contains(t, buf.String(), "* BACKTEST: intraday 2024-03-04 .. 2024-03-05")
	assert.Contains(t, buf.String(), "** Trade: TCS.NS")
}
