package portfolio

import (
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rustyeddy/intraday/internal/errs"
)

const eps = 1e-6

// Limits are the invariants Verify checks. The daily loss limit is not one
// of them: exits book at their fills, so realized loss can pass the limit by
// the slippage on the last close. The engine halts entries when it does.
type Limits struct {
	MaxPortfolioExposure float64 // fraction of peak balance
	MaxDailyTrades       int
}

// State is an immutable copy of the ledger.
type State struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`

	InitialCapital float64 `json:"initial_capital"`
	Cash           float64 `json:"cash"`
	Balance        float64 `json:"balance"` // capital plus realized P&L
	Equity         float64 `json:"equity"`  // balance plus unrealized P&L
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`

	DayRealizedPnL float64 `json:"day_realized_pnl"`
	DailyLoss      float64 `json:"daily_loss"`
	TradesToday    int     `json:"trades_today"`

	Exposure       float64            `json:"exposure"`
	OpenRisk       float64            `json:"open_risk"`
	SectorExposure map[string]float64 `json:"sector_exposure"`
	Positions      []Position         `json:"positions"` // PENDING and OPEN, by symbol

	PeakEquity  float64 `json:"peak_equity"`
	Drawdown    float64 `json:"drawdown"`
	MaxDrawdown float64 `json:"max_drawdown"`

	Halted      bool   `json:"halted"`
	HaltReason  string `json:"halt_reason,omitempty"`
	ClosedCount int    `json:"closed_count"`
}

// Holds reports whether symbol has a pending or open position.
func (s State) Holds(symbol string) bool {
	_, ok := s.Position(symbol)
	return ok
}

func (s State) Position(symbol string) (Position, bool) {
	i, ok := slices.BinarySearchFunc(s.Positions, symbol, func(p Position, sym string) int {
		return strings.Compare(p.Symbol, sym)
	})
	if !ok {
		return Position{}, false
	}
	return s.Positions[i], true
}

// OpenCount counts PENDING and OPEN positions.
func (s State) OpenCount() int { return len(s.Positions) }

// Ledger is the single owner of account state. It is not safe for
// concurrent use; the engine drives it from one goroutine.
type Ledger struct {
	limits Limits

	initial     float64
	cash        float64
	realized    float64
	dayRealized float64
	trades      int
	session     string
	now         time.Time

	positions map[string]*Position
	closed    []Position

	peakEquity  float64
	peakBalance float64
	maxDD       float64

	halted     bool
	haltReason string
}

func NewLedger(capital float64, limits Limits) *Ledger {
	return &Ledger{
		limits:      limits,
		initial:     capital,
		cash:        capital,
		positions:   make(map[string]*Position),
		peakEquity:  capital,
		peakBalance: capital,
	}
}

// Reserve books a PENDING position. Its notional leaves cash and counts
// toward exposure until it is confirmed or cancelled.
func (l *Ledger) Reserve(p Position) error {
	const op = "portfolio.Reserve"
	if p.Status != Pending {
		return errs.Ef(errs.StateCorruption, op, "%s: status %s, want %s", p.Symbol, p.Status, Pending)
	}
	if _, ok := l.positions[p.Symbol]; ok {
		return errs.Ef(errs.StateCorruption, op, "%s: already holds a position", p.Symbol)
	}
	if p.Size <= 0 || !p.bracketOK() {
		return errs.Ef(errs.StateCorruption, op, "%s: invalid size or bracket", p.Symbol)
	}
	if n := p.Notional(); n > l.cash+eps {
		return errs.Ef(errs.StateCorruption, op, "%s: notional %.2f exceeds cash %.2f", p.Symbol, n, l.cash)
	}

	p.LastPrice = p.EntryPrice
	l.cash -= p.Notional()
	l.positions[p.Symbol] = &p
	return nil
}

// Confirm moves a PENDING position to OPEN at the fill price. Stop and
// target shift with the fill so their distances are kept.
func (l *Ledger) Confirm(symbol string, fill float64, at time.Time) (Position, error) {
	const op = "portfolio.Confirm"
	p, ok := l.positions[symbol]
	if !ok || p.Status != Pending {
		return Position{}, errs.Ef(errs.StateCorruption, op, "%s: no pending position", symbol)
	}
	if fill <= 0 {
		fill = p.EntryPrice
	}
	delta := fill - p.EntryPrice
	if need := p.Size * delta; need > l.cash+eps {
		return Position{}, errs.Ef(errs.ExecutionFailed, op, "%s: fill %.2f needs %.2f more cash", symbol, fill, need)
	}
	if m := l.limits.MaxPortfolioExposure; m > 0 && delta > 0 {
		limit := m * l.peakBalance
		if after := l.exposure() + p.Size*delta; after > limit+eps {
			return Position{}, errs.Ef(errs.ExecutionFailed, op, "%s: fill %.2f takes exposure to %.2f over cap %.2f", symbol, fill, after, limit)
		}
	}

	l.cash -= p.Size * delta
	p.EntryPrice = fill
	p.StopLoss += delta
	p.TakeProfit += delta
	p.LastPrice = fill
	p.EntryTime = at
	p.Status = Open
	l.trades++
	return *p, nil
}

// Cancel moves a PENDING position to CANCELLED and releases its cash.
func (l *Ledger) Cancel(symbol, reason string, at time.Time) (Position, error) {
	p, ok := l.positions[symbol]
	if !ok || p.Status != Pending {
		return Position{}, errs.Ef(errs.StateCorruption, "portfolio.Cancel", "%s: no pending position", symbol)
	}
	l.cash += p.Notional()
	p.Status = Cancelled
	p.Reason = reason
	p.ExitTime = at
	delete(l.positions, symbol)
	l.closed = append(l.closed, *p)
	return *p, nil
}

// Close realizes an OPEN position at price. Every check runs before any
// field changes, so the ledger either records the whole close or nothing.
func (l *Ledger) Close(symbol string, status Status, price float64, at time.Time, reason string) (Position, error) {
	const op = "portfolio.Close"
	p, ok := l.positions[symbol]
	switch {
	case !ok || p.Status != Open:
		return Position{}, errs.Ef(errs.StateCorruption, op, "%s: no open position", symbol)
	case !status.Closed():
		return Position{}, errs.Ef(errs.StateCorruption, op, "%s: %s is not a close state", symbol, status)
	case price <= 0 || math.IsNaN(price) || math.IsInf(price, 0):
		return Position{}, errs.Ef(errs.StateCorruption, op, "%s: bad close price %v", symbol, price)
	}

	out := *p
	pnl := out.PnLAt(price)
	out.Status = status
	out.ExitPrice = price
	out.ExitTime = at
	out.LastPrice = price
	out.RealizedPnL = pnl
	out.UnrealizedPnL = 0
	out.Reason = reason

	l.cash += out.Notional() + pnl
	l.realized += pnl
	l.dayRealized += pnl
	delete(l.positions, symbol)
	l.closed = append(l.closed, out)
	l.trackPeaks()
	return out, nil
}

// Mark revalues an OPEN position at price.
func (l *Ledger) Mark(symbol string, price float64, at time.Time) {
	if at.After(l.now) {
		l.now = at
	}
	p, ok := l.positions[symbol]
	if !ok || p.Status != Open || price <= 0 {
		return
	}
	p.LastPrice = price
	p.UnrealizedPnL = p.PnLAt(price)
	l.trackPeaks()
}

// SetTime stamps the ledger clock used for snapshots.
func (l *Ledger) SetTime(t time.Time) { l.now = t }

// ResetSession clears the daily counters and any halt when date differs
// from the current session. It reports whether a reset happened.
func (l *Ledger) ResetSession(date string) bool {
	if date == l.session {
		return false
	}
	l.session = date
	l.dayRealized = 0
	l.trades = 0
	l.halted = false
	l.haltReason = ""
	return true
}

// Halt stops new entries for the rest of the session.
func (l *Ledger) Halt(reason string) {
	if l.halted {
		return
	}
	l.halted = true
	l.haltReason = reason
}

func (l *Ledger) Halted() (bool, string) { return l.halted, l.haltReason }

func (l *Ledger) Position(symbol string) (Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns PENDING and OPEN positions ordered by symbol.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, sym := range slices.Sorted(maps.Keys(l.positions)) {
		out = append(out, *l.positions[sym])
	}
	return out
}

// Closed returns terminal positions recorded at index from and after.
func (l *Ledger) Closed(from int) []Position {
	if from < 0 {
		from = 0
	}
	if from >= len(l.closed) {
		return nil
	}
	return slices.Clone(l.closed[from:])
}

func (l *Ledger) Snapshot() State {
	s := State{
		Time:           l.now,
		Session:        l.session,
		InitialCapital: l.initial,
		Cash:           l.cash,
		RealizedPnL:    l.realized,
		Balance:        l.initial + l.realized,
		DayRealizedPnL: l.dayRealized,
		DailyLoss:      math.Max(0, -l.dayRealized),
		TradesToday:    l.trades,
		SectorExposure: make(map[string]float64),
		Positions:      l.Positions(),
		PeakEquity:     l.peakEquity,
		MaxDrawdown:    l.maxDD,
		Halted:         l.halted,
		HaltReason:     l.haltReason,
		ClosedCount:    len(l.closed),
	}
	for _, p := range s.Positions {
		s.UnrealizedPnL += p.UnrealizedPnL
		s.Exposure += p.Notional()
		s.OpenRisk += p.PlannedRisk()
		s.SectorExposure[p.Sector] += p.Notional()
	}
	s.Equity = s.Balance + s.UnrealizedPnL
	if s.PeakEquity > 0 {
		s.Drawdown = math.Max(0, (s.PeakEquity-s.Equity)/s.PeakEquity)
	}
	return s
}

// Verify checks the ledger invariants. Any failure is StateCorruption.
func (l *Ledger) Verify() error {
	const op = "portfolio.Verify"
	exposure := 0.0
	for sym, p := range l.positions {
		switch {
		case p.Symbol != sym:
			return errs.Ef(errs.StateCorruption, op, "position %s filed under %s", p.Symbol, sym)
		case p.Status != Pending && p.Status != Open:
			return errs.Ef(errs.StateCorruption, op, "%s: live position in state %s", sym, p.Status)
		case p.Size <= 0:
			return errs.Ef(errs.StateCorruption, op, "%s: size %v", sym, p.Size)
		case !p.bracketOK():
			return errs.Ef(errs.StateCorruption, op, "%s: stop %.2f / target %.2f invalid for entry %.2f", sym, p.StopLoss, p.TakeProfit, p.EntryPrice)
		}
		exposure += p.Notional()
	}

	if l.cash < -eps {
		return errs.Ef(errs.StateCorruption, op, "negative cash %.2f", l.cash)
	}
	if d := l.cash + exposure - (l.initial + l.realized); math.Abs(d) > eps*math.Max(1, l.initial) {
		return errs.Ef(errs.StateCorruption, op, "cash and exposure off balance by %.4f", d)
	}
	if m := l.limits.MaxPortfolioExposure; m > 0 && exposure > m*l.peakBalance+eps {
		return errs.Ef(errs.StateCorruption, op, "exposure %.2f over cap %.2f", exposure, m*l.peakBalance)
	}
	if m := l.limits.MaxDailyTrades; m > 0 && l.trades > m {
		return errs.Ef(errs.StateCorruption, op, "%d trades over limit %d", l.trades, m)
	}
	return nil
}

func (l *Ledger) exposure() float64 {
	total := 0.0
	for _, p := range l.positions {
		total += p.Notional()
	}
	return total
}

func (l *Ledger) trackPeaks() {
	bal := l.initial + l.realized
	eq := bal
	for _, p := range l.positions {
		eq += p.UnrealizedPnL
	}
	l.peakBalance = math.Max(l.peakBalance, bal)
	l.peakEquity = math.Max(l.peakEquity, eq)
	if l.peakEquity > 0 {
		l.maxDD = math.Max(l.maxDD, (l.peakEquity-eq)/l.peakEquity)
	}
}
