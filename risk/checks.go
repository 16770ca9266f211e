package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/intraday/market"
	"github.com/rustyeddy/intraday/portfolio"
	"github.com/rustyeddy/intraday/rank"
)

// Rejection codes.
const (
	CodeDailyTrades     = "DAILY_TRADE_LIMIT"
	CodeDailyLoss       = "DAILY_LOSS_LIMIT"
	CodeAlreadyHeld     = "ALREADY_HELD"
	CodeSectorExposure  = "SECTOR_EXPOSURE"
	CodeSizeTooSmall    = "SIZE_TOO_SMALL"
	CodePortfolioExpose = "PORTFOLIO_EXPOSURE"
	CodeNoDirection     = "NO_DIRECTION"
	CodeInvalidBracket  = "INVALID_BRACKET"
)

// Violation is the first rule a candidate failed.
type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type Decision struct {
	Candidate rank.Candidate `json:"candidate"`
	Accepted  bool           `json:"accepted"`
	Violation *Violation     `json:"violation,omitempty"`

	Size       float64 `json:"size"`
	Notional   float64 `json:"notional"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	PlannedRisk    float64 `json:"planned_risk"`
	PlannedRiskPct float64 `json:"planned_risk_pct"`
	PlannedRR      float64 `json:"planned_rr"`
}

// Reason is the rejection message, empty when accepted.
func (d Decision) Reason() string {
	if d.Violation == nil {
		return ""
	}
	return d.Violation.Msg
}

// LimitBreached reports a rejection caused by a session circuit breaker.
// No later candidate can pass until the session resets.
func (d Decision) LimitBreached() bool {
	if d.Violation == nil {
		return false
	}
	return d.Violation.Code == CodeDailyTrades || d.Violation.Code == CodeDailyLoss
}

func (d *Decision) reject(code, msg string) Decision {
	d.Accepted = false
	d.Violation = &Violation{Code: code, Msg: msg}
	return *d
}

// Evaluate sizes c against st and applies the rejection rules in order,
// first match wins: daily trade count, daily realized loss, symbol already
// held, a bracket outside (0, inf) or on the wrong side of entry, sector
// concentration, size below one lot, portfolio exposure.
func Evaluate(p Policy, c rank.Candidate, st portfolio.State) Decision {
	d := Decision{Candidate: c, Entry: c.Price}

	if c.Direction == market.Flat {
		return d.reject(CodeNoDirection, "candidate has no direction")
	}

	balance := st.Balance
	budget := math.Inf(1)
	if p.MaxDailyLoss > 0 {
		budget = p.MaxDailyLoss - st.DailyLoss - st.OpenRisk
	}

	res := Calculate(Inputs{
		Equity:      balance,
		RiskPct:     p.RiskPerTrade,
		ATR:         c.ATR,
		StopATR:     p.StopATR,
		Entry:       c.Price,
		MaxNotional: p.MaxPositionNotional,
		Cash:        st.Cash,
		LossBudget:  budget,
		Lot:         p.MinLot,
	})
	if budget <= 0 || st.Cash <= 0 {
		res.Units = 0
	}

	d.Size = res.Units
	d.Notional = res.Units * c.Price
	if c.ATR > 0 && c.Price > 0 {
		d.StopLoss, d.TakeProfit = Bracket(c.Direction, c.Price, c.ATR, p.StopATR, p.TargetATR)
		d.PlannedRisk = PlannedRisk(d.Size, d.Entry, d.StopLoss)
		d.PlannedRR = RR(d.Entry, d.StopLoss, d.TakeProfit)
	}
	if balance > 0 {
		d.PlannedRiskPct = d.PlannedRisk / balance
	}

	if p.MaxDailyTrades > 0 && st.TradesToday >= p.MaxDailyTrades {
		return d.reject(CodeDailyTrades, "daily trade limit reached")
	}
	if p.MaxDailyLoss > 0 && st.DailyLoss >= p.MaxDailyLoss {
		return d.reject(CodeDailyLoss, "daily loss limit reached")
	}
	if st.Holds(c.Symbol) {
		return d.reject(CodeAlreadyHeld, fmt.Sprintf("%s already has a position", c.Symbol))
	}
	if d.Size > 0 && !bracketValid(c.Direction, d.Entry, d.StopLoss, d.TakeProfit) {
		return d.reject(CodeInvalidBracket,
			fmt.Sprintf("stop %.2f / target %.2f invalid for entry %.2f", d.StopLoss, d.TakeProfit, d.Entry))
	}
	if p.SectorThreshold > 0 && balance > 0 {
		after := (st.SectorExposure[c.Sector] + d.Notional) / balance
		if after > p.SectorThreshold {
			return d.reject(CodeSectorExposure,
				fmt.Sprintf("sector %s exposure %.1f%% exceeds max %.1f%%", c.Sector, 100*after, 100*p.SectorThreshold))
		}
	}
	lot := p.MinLot
	if lot <= 0 {
		lot = 1
	}
	if d.Size < lot {
		return d.reject(CodeSizeTooSmall, fmt.Sprintf("size %.0f below minimum unit %.0f", d.Size, lot))
	}
	if p.MaxPortfolioExposure > 0 {
		limit := p.MaxPortfolioExposure * balance
		if st.Exposure+d.Notional > limit {
			return d.reject(CodePortfolioExpose,
				fmt.Sprintf("portfolio exposure %.2f would exceed max %.2f", st.Exposure+d.Notional, limit))
		}
	}

	d.Accepted = true
	return d
}

func bracketValid(dir market.Direction, entry, stop, target float64) bool {
	if stop <= 0 || target <= 0 {
		return false
	}
	switch dir {
	case market.Long:
		return stop < entry && entry < target
	case market.Short:
		return target < entry && entry < stop
	}
	return false
}
