package journal

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Single connection; sqlite serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, symbol, sector, direction, status, size, entry_price, exit_price, stop_loss, take_profit, score, open_time, close_time, realized_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Sector, t.Direction.String(), t.Status, t.Size,
		t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit, t.Score,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPnL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, cash, exposure, unrealized_pnl, drawdown, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Balance, e.Equity, e.Cash, e.Exposure, e.UnrealizedPnL, e.Drawdown, e.OpenPositions,
	)
	return err
}

func (j *SQLite) RecordEvent(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`
		INSERT INTO events (time, kind, symbol, code, message)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time.UTC(), string(e.Kind), e.Symbol, e.Code, e.Message,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
