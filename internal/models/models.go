package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the direction an agent recommends.
type TradeAction string

const (
	ActionBuy        TradeAction = "BUY"
	ActionSell       TradeAction = "SELL"
	ActionStrongBuy  TradeAction = "STRONG_BUY"
	ActionStrongSell TradeAction = "STRONG_SELL"
	ActionHold       TradeAction = "HOLD"
)

// IsLong reports whether the action opens a long position.
func (a TradeAction) IsLong() bool {
	return a == ActionBuy || a == ActionStrongBuy
}

// IsShort reports whether the action opens a short position.
func (a TradeAction) IsShort() bool {
	return a == ActionSell || a == ActionStrongSell
}

// Tradable reports whether the action produces a trade at all.
func (a TradeAction) Tradable() bool {
	return a.IsLong() || a.IsShort()
}

// TradeStatus is the lifecycle state of a trade. A trade is created open
// and transitions exactly once to one of the terminal states.
type TradeStatus string

const (
	StatusOpen       TradeStatus = "open"
	StatusClosed     TradeStatus = "closed"
	StatusStoppedOut TradeStatus = "stopped_out"
	StatusTargetHit  TradeStatus = "target_hit"
	StatusExpired    TradeStatus = "expired"
	StatusCancelled  TradeStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s TradeStatus) Terminal() bool {
	return s != StatusOpen && s != ""
}

// Trade is a simulated position owned by the persistent store.
type Trade struct {
	ID            int64            `json:"id"`
	Symbol        string           `json:"symbol"`
	Action        TradeAction      `json:"action"`
	Quantity      int64            `json:"quantity"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	EntryDate     time.Time        `json:"entry_date"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty"`
	ExitDate      *time.Time       `json:"exit_date,omitempty"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	Status        TradeStatus      `json:"status"`
	PnLDollars    *decimal.Decimal `json:"pnl_dollars,omitempty"`
	PnLPercent    *float64         `json:"pnl_percent,omitempty"`
	HoldingDays   *int             `json:"holding_days,omitempty"`
	RecommendedBy string           `json:"recommended_by"`
	Confidence    *float64         `json:"confidence,omitempty"`
	PipelineID    string           `json:"pipeline_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// Cost returns the entry notional of the trade.
func (t *Trade) Cost() decimal.Decimal {
	return t.EntryPrice.Mul(decimal.NewFromInt(t.Quantity))
}

// Outcome classifies a resolved recommendation.
type Outcome string

const (
	OutcomePending    Outcome = "pending"
	OutcomeWin        Outcome = "win"
	OutcomeLoss       Outcome = "loss"
	OutcomeBreakeven  Outcome = "breakeven"
	OutcomeStoppedOut Outcome = "stopped_out"
	OutcomeTargetHit  Outcome = "target_hit"
	OutcomeExpired    Outcome = "expired"
)

// Favorable reports whether the outcome counts as a win for statistics.
func (o Outcome) Favorable() bool {
	return o == OutcomeWin || o == OutcomeTargetHit
}

// Unfavorable reports whether the outcome counts as a loss for statistics.
func (o Outcome) Unfavorable() bool {
	return o == OutcomeLoss || o == OutcomeStoppedOut
}

// TrackRecord is the stored, eventually-resolved outcome of one agent
// recommendation. At most one pending record exists per (agent, symbol).
type TrackRecord struct {
	ID             int64            `json:"id"`
	AgentID        string           `json:"agent_id"`
	Symbol         string           `json:"symbol"`
	Recommendation TradeAction      `json:"recommendation"`
	Confidence     *float64         `json:"confidence,omitempty"`
	TargetPrice    *decimal.Decimal `json:"target_price,omitempty"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	RecommendedAt  time.Time        `json:"recommended_at"`
	Outcome        Outcome          `json:"outcome"`
	ActualReturn   *float64         `json:"actual_return,omitempty"`
	PeakReturn     *float64         `json:"peak_return,omitempty"`
	WorstDrawdown  *float64         `json:"worst_drawdown,omitempty"`
	DaysToOutcome  *int             `json:"days_to_outcome,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	PipelineID     string           `json:"pipeline_id,omitempty"`
}

// Recommendation is the sole input consumed from the agent layer.
// QuotedPrice carries the market quote at recommendation time when the
// caller has one; the engine falls back to TargetPrice for entry.
type Recommendation struct {
	Symbol      string           `json:"symbol"`
	Action      TradeAction      `json:"action"`
	Confidence  float64          `json:"confidence"` // 0..100
	TimeHorizon string           `json:"time_horizon,omitempty"`
	Rationale   string           `json:"rationale,omitempty"`
	QuotedPrice *decimal.Decimal `json:"quoted_price,omitempty"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
}

// PortfolioState is derived from open trades plus starting capital.
// It is recomputed on every refresh and never persisted.
type PortfolioState struct {
	VirtualCash     decimal.Decimal `json:"virtual_cash"`
	Positions       []*Trade        `json:"positions"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	TotalValue      decimal.Decimal `json:"total_value"`
	PnL             decimal.Decimal `json:"pnl"`
}
