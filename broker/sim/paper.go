// Package sim is a paper executor: orders fill immediately at the reference
// price plus optional slippage. It backs backtests and paper-live runs.
package sim

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rustyeddy/intraday/broker"
	"github.com/rustyeddy/intraday/internal/id"
	"github.com/rustyeddy/intraday/market"
)

type Config struct {
	SlippageBps float64       // adverse fill offset in basis points
	Latency     time.Duration // simulated round trip
}

// Trade is the paper executor's view of one position.
type Trade struct {
	ID         string
	PositionID string
	Symbol     string
	Direction  market.Direction
	Size       float64

	EntryPrice float64
	EntryTime  time.Time
	ExitPrice  float64
	ExitTime   time.Time
	Reason     string
	Open       bool
}

type Paper struct {
	mu     sync.Mutex
	cfg    Config
	trades map[string]*Trade // by position ID
	faults []fault
}

type fault struct {
	symbol string // empty matches any
	exit   bool
	err    error
}

func NewPaper(cfg Config) *Paper {
	return &Paper{cfg: cfg, trades: make(map[string]*Trade)}
}

// FailNext makes the next entry (or exit) for symbol fail with err. An empty
// symbol matches any order. Faults queue in order.
func (p *Paper) FailNext(symbol string, exit bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, fault{symbol: symbol, exit: exit, err: err})
}

func (p *Paper) SubmitEntry(ctx context.Context, o broker.Order) (broker.Fill, error) {
	if err := p.wait(ctx); err != nil {
		return broker.Fill{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFaultLocked(o.Symbol, false); err != nil {
		return broker.Fill{}, err
	}
	if t, ok := p.trades[o.PositionID]; ok && t.Open {
		return broker.Fill{}, fmt.Errorf("entry %s: %w: already open", o.PositionID, broker.ErrRejected)
	}
	if o.Size <= 0 || o.Price <= 0 {
		return broker.Fill{}, fmt.Errorf("entry %s: %w: size %v price %v", o.Symbol, broker.ErrRejected, o.Size, o.Price)
	}

	// Buying fills higher, selling lower.
	price := p.slip(o.Price, o.Direction.Sign())
	t := &Trade{
		ID:         id.NewAt(o.Time),
		PositionID: o.PositionID,
		Symbol:     o.Symbol,
		Direction:  o.Direction,
		Size:       o.Size,
		EntryPrice: price,
		EntryTime:  o.Time,
		Open:       true,
	}
	p.trades[o.PositionID] = t

	return broker.Fill{OrderID: t.ID, PositionID: o.PositionID, Symbol: o.Symbol, Size: o.Size, Price: price, Time: o.Time}, nil
}

func (p *Paper) SubmitExit(ctx context.Context, o broker.Order) (broker.Fill, error) {
	if err := p.wait(ctx); err != nil {
		return broker.Fill{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFaultLocked(o.Symbol, true); err != nil {
		return broker.Fill{}, err
	}
	t, ok := p.trades[o.PositionID]
	if !ok || !t.Open {
		return broker.Fill{}, fmt.Errorf("exit %s: %w: %w", o.PositionID, broker.ErrRejected, broker.ErrOrderNotFound)
	}

	price := p.slip(o.Price, -t.Direction.Sign())
	t.Open = false
	t.ExitPrice = price
	t.ExitTime = o.Time
	t.Reason = o.Reason

	return broker.Fill{OrderID: id.NewAt(o.Time), PositionID: o.PositionID, Symbol: o.Symbol, Size: t.Size, Price: price, Time: o.Time}, nil
}

// Trades returns every trade ordered by position ID.
func (p *Paper) Trades() []Trade {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Trade, 0, len(p.trades))
	for _, k := range slices.Sorted(maps.Keys(p.trades)) {
		out = append(out, *p.trades[k])
	}
	return out
}

// OpenCount is the number of trades not yet exited.
func (p *Paper) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, t := range p.trades {
		if t.Open {
			n++
		}
	}
	return n
}

func (p *Paper) wait(ctx context.Context) error {
	if p.cfg.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Paper) takeFaultLocked(symbol string, exit bool) error {
	for i, f := range p.faults {
		if f.exit == exit && (f.symbol == "" || f.symbol == symbol) {
			p.faults = slices.Delete(p.faults, i, i+1)
			return f.err
		}
	}
	return nil
}

func (p *Paper) slip(price, sign float64) float64 {
	return price * (1 + sign*p.cfg.SlippageBps/10_000)
}
