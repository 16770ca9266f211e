package journal

import (
	"slices"
	"sync"
	"time"
)

// Memory keeps everything in process. Backtests use it to build their
// report; it also backs the dashboard when no database is configured.
type Memory struct {
	mu     sync.RWMutex
	trades []TradeRecord
	equity []EquitySnapshot
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.mu.Lock()
	m.trades = append(m.trades, t)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecordEquity(e EquitySnapshot) error {
	m.mu.Lock()
	m.equity = append(m.equity, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecordEvent(e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Trades() []TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.trades)
}

func (m *Memory) Equity() []EquitySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.equity)
}

func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

func (m *Memory) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TradeRecord
	for _, t := range m.trades {
		if !t.CloseTime.Before(start) && t.CloseTime.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EquitySnapshot
	for _, e := range m.equity {
		if !e.Time.Before(start) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ListEvents(limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev := m.events
	if limit > 0 && len(ev) > limit {
		ev = ev[len(ev)-limit:]
	}
	return slices.Clone(ev), nil
}
