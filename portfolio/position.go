// Package portfolio owns the account state: cash, positions, daily counters
// and exposure. A Ledger is mutated by one goroutine; everyone else reads
// State copies.
package portfolio

import (
	"time"

	"github.com/rustyeddy/intraday/market"
)

// Status is a position lifecycle state.
type Status string

const (
	Pending      Status = "PENDING"
	Open         Status = "OPEN"
	ClosedStop   Status = "CLOSED_STOP"
	ClosedTarget Status = "CLOSED_TARGET"
	ClosedSignal Status = "CLOSED_SIGNAL"
	ClosedTime   Status = "CLOSED_TIME"
	ClosedManual Status = "CLOSED_MANUAL"
	Cancelled    Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case ClosedStop, ClosedTarget, ClosedSignal, ClosedTime, ClosedManual, Cancelled:
		return true
	}
	return false
}

// Closed reports a CLOSED_* state.
func (s Status) Closed() bool { return s.Terminal() && s != Cancelled }

type Position struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Sector    string           `json:"sector"`
	Direction market.Direction `json:"direction"`
	Status    Status           `json:"status"`

	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Score      float64   `json:"score"`

	LastPrice     float64 `json:"last_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`

	ExitPrice   float64   `json:"exit_price,omitempty"`
	ExitTime    time.Time `json:"exit_time,omitempty"`
	RealizedPnL float64   `json:"realized_pnl"`
	Reason      string    `json:"reason,omitempty"`
}

// Notional is the committed capital at the entry price.
func (p Position) Notional() float64 { return p.Size * p.EntryPrice }

// PnLAt is the P&L if the position were closed at price.
func (p Position) PnLAt(price float64) float64 {
	return p.Direction.Sign() * (price - p.EntryPrice) * p.Size
}

// PlannedRisk is the loss if the stop is hit.
func (p Position) PlannedRisk() float64 {
	d := p.EntryPrice - p.StopLoss
	if d < 0 {
		d = -d
	}
	return d * p.Size
}

// StopHit reports whether price reached or crossed the stop.
func (p Position) StopHit(price float64) bool {
	switch p.Direction {
	case market.Long:
		return price <= p.StopLoss
	case market.Short:
		return price >= p.StopLoss
	}
	return false
}

// TargetHit reports whether price reached or crossed the take profit.
func (p Position) TargetHit(price float64) bool {
	switch p.Direction {
	case market.Long:
		return price >= p.TakeProfit
	case market.Short:
		return price <= p.TakeProfit
	}
	return false
}

// bracketOK holds for stop < entry < target on longs and the mirror on shorts.
func (p Position) bracketOK() bool {
	if p.StopLoss <= 0 || p.TakeProfit <= 0 {
		return false
	}
	switch p.Direction {
	case market.Long:
		return p.StopLoss < p.EntryPrice && p.EntryPrice < p.TakeProfit
	case market.Short:
		return p.TakeProfit < p.EntryPrice && p.EntryPrice < p.StopLoss
	}
	return false
}
