// Package trading converts agent recommendations into bounded paper
// trades and keeps open positions consistent with price movement.
package trading

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	// DefaultConfidence is assumed when a recommendation carries none.
	DefaultConfidence = 50.0
	// riskFraction is the share of portfolio value risked per trade.
	riskFraction = 0.02
	// impliedAdverseMove substitutes for a missing stop-loss: per-share
	// risk is assumed to be this fraction of the entry price.
	impliedAdverseMove = 0.05
)

// PositionSize turns a price, an optional stop and the portfolio context
// into a share count. Three caps are computed independently and the
// minimum wins: a half-Kelly budget from confidence, a flat position cap,
// and a risk budget against the stop distance. The result is then floored
// by available cash and floored at 1 share. No single heuristic is safe
// alone; taking the minimum enforces all three at once.
func PositionSize(price decimal.Decimal, stopLoss *decimal.Decimal, portfolioValue, availableCash decimal.Decimal, maxPositionPct, confidence float64) (int64, error) {
	if price.Sign() <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %s", price)
	}
	if confidence <= 0 {
		confidence = DefaultConfidence
	}

	// Half-Kelly under an even-money payoff assumption.
	p := math.Min(math.Max(confidence/100, 0.01), 0.99)
	kellyFraction := math.Max(0, 2*p-1) / 2
	kellyShares := portfolioValue.Mul(decimal.NewFromFloat(kellyFraction)).Div(price).IntPart()

	// Flat concentration cap.
	capShares := portfolioValue.Mul(decimal.NewFromFloat(maxPositionPct)).Div(price).IntPart()

	// Risk budget against the stop distance.
	riskPerShare := price.Mul(decimal.NewFromFloat(impliedAdverseMove))
	if stopLoss != nil && stopLoss.Sign() > 0 {
		riskPerShare = price.Sub(*stopLoss).Abs()
	}
	riskShares := capShares
	if riskPerShare.Sign() > 0 {
		riskShares = portfolioValue.Mul(decimal.NewFromFloat(riskFraction)).Div(riskPerShare).IntPart()
	}

	shares := kellyShares
	if capShares < shares {
		shares = capShares
	}
	if riskShares < shares {
		shares = riskShares
	}

	if cashShares := availableCash.Div(price).IntPart(); cashShares < shares {
		shares = cashShares
	}
	if shares < 1 {
		shares = 1
	}
	return shares, nil
}
