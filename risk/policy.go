// Package risk sizes and brackets trade candidates and decides whether the
// account can take them. It never mutates portfolio state.
package risk

import "github.com/rustyeddy/intraday/portfolio"

type Policy struct {
	// Sizing
	RiskPerTrade float64 // 0.02 of balance risked per trade
	StopATR      float64 // 2: stop distance in ATRs
	TargetATR    float64 // 3: target distance in ATRs, must exceed StopATR
	MinLot       float64 // smallest tradable unit, 1 for cash equities

	// Exposure limits
	MaxPositionNotional  float64 // 100000
	MaxPortfolioExposure float64 // 0.8 of balance
	SectorThreshold      float64 // 0.25 of balance per sector; 0 disables

	// Circuit breakers
	MaxDailyLoss   float64 // 50000
	MaxDailyTrades int     // 10
}

func DefaultPolicy() Policy {
	return Policy{
		RiskPerTrade:         0.02,
		StopATR:              2,
		TargetATR:            3,
		MinLot:               1,
		MaxPositionNotional:  100_000,
		MaxPortfolioExposure: 0.8,
		SectorThreshold:      0.25,
		MaxDailyLoss:         50_000,
		MaxDailyTrades:       10,
	}
}

// Limits are the ledger invariants implied by the policy.
func (p Policy) Limits() portfolio.Limits {
	return portfolio.Limits{
		MaxPortfolioExposure: p.MaxPortfolioExposure,
		MaxDailyTrades:       p.MaxDailyTrades,
	}
}
