package risk

import (
	"math"

	"github.com/rustyeddy/intraday/market"
)

type Inputs struct {
	Equity  float64
	RiskPct float64 // 0.02
	ATR     float64
	StopATR float64 // 2
	Entry   float64

	// Clamps; zero disables each one.
	MaxNotional float64
	Cash        float64
	LossBudget  float64 // loss still allowed today after open risk
	Lot         float64
}

type Result struct {
	Units        float64
	StopDistance float64
	RiskAmount   float64
}

// Calculate sizes a position so hitting the stop loses RiskPct of equity,
// then clamps it by notional, cash and remaining loss budget and rounds down
// to whole lots. Bad inputs give zero units.
func Calculate(in Inputs) Result {
	dist := in.StopATR * in.ATR
	out := Result{StopDistance: dist, RiskAmount: in.Equity * in.RiskPct}
	if dist <= 0 || in.Entry <= 0 || out.RiskAmount <= 0 || math.IsNaN(dist) {
		return out
	}

	units := math.Floor(out.RiskAmount / dist)
	if in.MaxNotional > 0 {
		units = math.Min(units, math.Floor(in.MaxNotional/in.Entry))
	}
	if in.Cash > 0 {
		units = math.Min(units, math.Floor(in.Cash/in.Entry))
	}
	if in.LossBudget > 0 {
		units = math.Min(units, math.Floor(in.LossBudget/dist))
	}
	if in.Lot > 0 {
		units = math.Floor(units/in.Lot) * in.Lot
	}
	out.Units = math.Max(0, units)
	return out
}

// Bracket returns the stop loss and take profit for a direction.
func Bracket(dir market.Direction, entry, atr, stopATR, targetATR float64) (stop, target float64) {
	s := dir.Sign()
	return entry - s*stopATR*atr, entry + s*targetATR*atr
}

// PlannedRisk is the loss in account currency if the stop is hit.
func PlannedRisk(units, entry, stop float64) float64 {
	return units * math.Abs(entry-stop)
}

// RR is reward over risk.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}
