// Package journal persists what the engine did: closed positions, equity
// snapshots and risk events. Records are append-only.
package journal

import (
	"time"

	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/portfolio"
)

// TradeRecord is one terminal position.
type TradeRecord struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Sector      string           `json:"sector"`
	Direction   market.Direction `json:"direction"`
	Status      string           `json:"status"`
	Size        float64          `json:"size"`
	EntryPrice  float64          `json:"entry_price"`
	ExitPrice   float64          `json:"exit_price"`
	StopLoss    float64          `json:"stop_loss"`
	TakeProfit  float64          `json:"take_profit"`
	Score       float64          `json:"score"`
	OpenTime    time.Time        `json:"open_time"`
	CloseTime   time.Time        `json:"close_time"`
	RealizedPnL float64          `json:"realized_pnl"`
	Reason      string           `json:"reason"`
}

// Win reports a closed trade with positive P&L.
func (r TradeRecord) Win() bool { return r.RealizedPnL > 0 }

func RecordFromPosition(p portfolio.Position) TradeRecord {
	return TradeRecord{
		ID:          p.ID,
		Symbol:      p.Symbol,
		Sector:      p.Sector,
		Direction:   p.Direction,
		Status:      string(p.Status),
		Size:        p.Size,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.ExitPrice,
		StopLoss:    p.StopLoss,
		TakeProfit:  p.TakeProfit,
		Score:       p.Score,
		OpenTime:    p.EntryTime,
		CloseTime:   p.ExitTime,
		RealizedPnL: p.RealizedPnL,
		Reason:      p.Reason,
	}
}

// EquitySnapshot is the account at the end of one tick.
type EquitySnapshot struct {
	Time          time.Time `json:"time"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	Cash          float64   `json:"cash"`
	Exposure      float64   `json:"exposure"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Drawdown      float64   `json:"drawdown"`
	OpenPositions int       `json:"open_positions"`
}

func EquityFromState(st portfolio.State) EquitySnapshot {
	return EquitySnapshot{
		Time:          st.Time,
		Balance:       st.Balance,
		Equity:        st.Equity,
		Cash:          st.Cash,
		Exposure:      st.Exposure,
		UnrealizedPnL: st.UnrealizedPnL,
		Drawdown:      st.Drawdown,
		OpenPositions: st.OpenCount(),
	}
}

type EventKind string

const (
	EventBreach       EventKind = "RISK_BREACH"
	EventHalt         EventKind = "HALT"
	EventSessionReset EventKind = "SESSION_RESET"
	EventSessionClose EventKind = "SESSION_CLOSE"
	EventExitFailed   EventKind = "EXIT_FAILED"
	EventFatal        EventKind = "FATAL"
)

// Event is a notable engine occurrence outside the trade flow.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordEvent(Event) error
	Close() error
}

// Reader is the query side used by the dashboard and reports.
type Reader interface {
	ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error)
	ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error)
	ListEvents(limit int) ([]Event, error)
}
