// Package publish pushes engine output to whoever is watching: the latest
// portfolio state after every tick plus closed trades and risk events.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/portfolio"
)

type Publisher interface {
	PublishState(ctx context.Context, st portfolio.State) error
	PublishTrade(ctx context.Context, t journal.TradeRecord) error
	PublishEvent(ctx context.Context, e journal.Event) error
	Close() error
}

// StateSource is the read side used by the dashboard.
type StateSource interface {
	State(ctx context.Context) (portfolio.State, error)
}

// ErrNoState is returned before the first state has been published.
var ErrNoState = errors.New("publish: no state yet")

// Message types on the wire.
const (
	TypeState = "state"
	TypeTrade = "trade"
	TypeEvent = "event"
)

// Envelope is the JSON wrapper used on streams.
type Envelope struct {
	Type  string               `json:"type"`
	Time  time.Time            `json:"time"`
	State *portfolio.State     `json:"state,omitempty"`
	Trade *journal.TradeRecord `json:"trade,omitempty"`
	Event *journal.Event       `json:"event,omitempty"`
}

func (e Envelope) Marshal() ([]byte, error) { return json.Marshal(e) }

// Memory holds the latest state for in-process readers.
type Memory struct {
	state  atomic.Pointer[portfolio.State]
	trades atomic.Int64
	events atomic.Int64
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) PublishState(_ context.Context, st portfolio.State) error {
	m.state.Store(&st)
	return nil
}

func (m *Memory) PublishTrade(context.Context, journal.TradeRecord) error {
	m.trades.Add(1)
	return nil
}

func (m *Memory) PublishEvent(context.Context, journal.Event) error {
	m.events.Add(1)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) State(context.Context) (portfolio.State, error) {
	p := m.state.Load()
	if p == nil {
		return portfolio.State{}, ErrNoState
	}
	return *p, nil
}

// Counts reports how many trades and events went through.
func (m *Memory) Counts() (trades, events int64) { return m.trades.Load(), m.events.Load() }

// Multi fans out to every publisher. All are tried; errors are joined.
type Multi []Publisher

func (m Multi) PublishState(ctx context.Context, st portfolio.State) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishState(ctx, st))
	}
	return errors.Join(errs...)
}

func (m Multi) PublishTrade(ctx context.Context, t journal.TradeRecord) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishTrade(ctx, t))
	}
	return errors.Join(errs...)
}

func (m Multi) PublishEvent(ctx context.Context, e journal.Event) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishEvent(ctx, e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
