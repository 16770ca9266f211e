package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/intraday/market"
)

const tradeColumns = `id, symbol, sector, direction, status, size, entry_price, exit_price, stop_loss, take_profit, score, open_time, close_time, realized_pnl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	var dir string
	err := s.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.Sector,
		&dir,
		&rec.Status,
		&rec.Size,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.StopLoss,
		&rec.TakeProfit,
		&rec.Score,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPnL,
		&rec.Reason,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	var d market.Direction
	if err := d.UnmarshalText([]byte(dir)); err != nil {
		return TradeRecord{}, err
	}
	rec.Direction = d
	return rec, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(id string) (TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", id)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity snapshots within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(`
		SELECT time, balance, equity, cash, exposure, unrealized_pnl, drawdown, open_positions
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(
			&e.Time,
			&e.Balance,
			&e.Equity,
			&e.Cash,
			&e.Exposure,
			&e.UnrealizedPnL,
			&e.Drawdown,
			&e.OpenPositions,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents returns the most recent events, oldest first. limit <= 0
// returns all of them.
func (j *SQLite) ListEvents(limit int) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.Query(`
		SELECT time, kind, symbol, code, message FROM (
			SELECT seq, time, kind, symbol, code, message
			FROM events ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.Time, &kind, &e.Symbol, &e.Code, &e.Message); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
