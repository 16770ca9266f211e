package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/portfolio"
)

var (
	open   = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	closeT = time.Date(2024, 3, 4, 11, 5, 0, 0, time.UTC)
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func sampleTrade(id string, closed time.Time, pnl float64) TradeRecord {
	return TradeRecord{
		ID:          id,
		Symbol:      "TCS.NS",
		Sector:      "IT",
		Direction:   market.Short,
		Status:      string(portfolio.ClosedTarget),
		Size:        25,
		EntryPrice:  3500,
		ExitPrice:   3440,
		StopLoss:    3540,
		TakeProfit:  3440,
		Score:       -72.5,
		OpenTime:    open,
		CloseTime:   closed,
		RealizedPnL: pnl,
		Reason:      "take profit",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"trades", "equity", "events", "backtest_runs"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	want := sampleTrade("01HQ0000000000000000000001", closeT, 1500)
	require.NoError(t, j.RecordTrade(want))
	assert.Error(t, j.RecordTrade(want), "ids are unique")

	got, err := j.GetTrade(want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.Equal(t, market.Short, got.Direction)
	assert.Equal(t, want.Status, got.Status)
	assert.InDelta(t, want.Size, got.Size, 1e-9)
	assert.InDelta(t, want.StopLoss, got.StopLoss, 1e-9)
	assert.InDelta(t, want.Score, got.Score, 1e-9)
	assert.True(t, got.OpenTime.Equal(want.OpenTime))
	assert.True(t, got.CloseTime.Equal(want.CloseTime))
	assert.InDelta(t, want.RealizedPnL, got.RealizedPnL, 1e-9)

	_, err = j.GetTrade("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	for i, d := range []time.Duration{0, time.Hour, 2 * time.Hour, 24 * time.Hour} {
		rec := sampleTrade(string(rune('a'+i)), closeT.Add(d), float64(i))
		require.NoError(t, j.RecordTrade(rec))
	}

	got, err := j.ListTradesClosedBetween(closeT, closeT.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	got, err = j.ListTradesClosedBetween(closeT.Add(48*time.Hour), closeT.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	for i := range 3 {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			Time:          open.Add(time.Duration(i) * time.Minute),
			Balance:       1_000_000,
			Equity:        1_000_000 + float64(i)*100,
			Cash:          900_000,
			Exposure:      100_000,
			OpenPositions: i,
		}))
	}

	got, err := j.ListEquityBetween(open, open.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 1_000_100, got[1].Equity, 1e-6)
	assert.Equal(t, 1, got[1].OpenPositions)
	assert.True(t, got[0].Time.Equal(open))
}

func TestSQLiteEvents(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	kinds := []EventKind{EventSessionReset, EventBreach, EventHalt}
	for i, k := range kinds {
		require.NoError(t, j.RecordEvent(Event{Time: open.Add(time.Duration(i) * time.Second), Kind: k, Code: "DAILY_LOSS", Message: string(k)}))
	}

	all, err := j.ListEvents(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, EventSessionReset, all[0].Kind)

	last, err := j.ListEvents(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, EventBreach, last[0].Kind)
	assert.Equal(t, EventHalt, last[1].Kind)
	assert.Equal(t, "DAILY_LOSS", last[1].Code)
}

func TestSQLiteRuns(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()
	ctx := context.Background()

	run := Run{RunID: "bt-1", Created: closeT, Dataset: "nse.csv", Start: open, End: closeT, Trades: 4, Wins: 3, Sharpe: 1.2}
	require.NoError(t, j.RecordRun(ctx, run))

	run.Trades = 5
	require.NoError(t, j.RecordRun(ctx, run), "rerun replaces")

	got, err := j.GetRun(ctx, "bt-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Trades)
	assert.Equal(t, "nse.csv", got.Dataset)
	assert.InDelta(t, 1.2, got.Sharpe, 1e-9)

	_, err = j.GetRun(ctx, "bt-2")
	assert.Error(t, err)
}

func TestRecordFromPosition(t *testing.T) {
	t.Parallel()

	p := portfolio.Position{
		ID: "p1", Symbol: "INFY.NS", Sector: "IT", Direction: market.Long,
		Status: portfolio.ClosedStop, Size: 10, EntryPrice: 1500, ExitPrice: 1480,
		EntryTime: open, ExitTime: closeT, RealizedPnL: -200, Reason: "stop loss",
	}
	rec := RecordFromPosition(p)
	assert.Equal(t, "CLOSED_STOP", rec.Status)
	assert.Equal(t, open, rec.OpenTime)
	assert.Equal(t, closeT, rec.CloseTime)
	assert.False(t, rec.Win())
}
