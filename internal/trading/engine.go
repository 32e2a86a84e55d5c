package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stock-advisors/internal/models"
	"stock-advisors/internal/store"
)

// Engine opens paper positions from recommendations and closes them when
// stop-loss or take-profit levels are crossed. Virtual cash and the open
// position list are the only process-wide mutable state; every mutation
// refreshes the read-through portfolio view from the store.
type Engine struct {
	store          store.Store
	resolver       *OutcomeResolver
	log            *slog.Logger
	startingCap    decimal.Decimal
	maxPositionPct float64
	now            func() time.Time

	mu        sync.Mutex
	cash      decimal.Decimal
	positions []*models.Trade
}

// NewEngine builds an engine over st and reconstructs cash and open
// positions by replaying the stored trades against startingCapital.
func NewEngine(ctx context.Context, st store.Store, startingCapital decimal.Decimal, maxPositionPct float64) (*Engine, error) {
	if startingCapital.Sign() <= 0 {
		return nil, fmt.Errorf("starting capital must be positive, got %s", startingCapital)
	}
	if maxPositionPct <= 0 || maxPositionPct > 1 {
		return nil, fmt.Errorf("max position pct must be in (0, 1], got %v", maxPositionPct)
	}

	e := &Engine{
		store:          st,
		resolver:       NewOutcomeResolver(st),
		log:            slog.Default().With("component", "trading"),
		startingCap:    startingCapital,
		maxPositionPct: maxPositionPct,
		now:            time.Now,
	}
	if err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Refresh reloads the portfolio view from the store.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshLocked(ctx)
}

func (e *Engine) refreshLocked(ctx context.Context) error {
	trades, err := e.store.AllTrades(ctx)
	if err != nil {
		return fmt.Errorf("refresh portfolio: %w", err)
	}

	cash := e.startingCap
	var positions []*models.Trade
	for _, t := range trades {
		long := t.Action.IsLong()
		if long {
			cash = cash.Sub(t.Cost())
		} else {
			cash = cash.Add(t.Cost())
		}
		switch {
		case t.Status == models.StatusOpen:
			positions = append(positions, t)
		case t.ExitPrice != nil:
			exitValue := t.ExitPrice.Mul(decimal.NewFromInt(t.Quantity))
			if long {
				cash = cash.Add(exitValue)
			} else {
				cash = cash.Sub(exitValue)
			}
		default:
			// Terminal with no exit (cancelled before fill): reverse the entry leg.
			if long {
				cash = cash.Add(t.Cost())
			} else {
				cash = cash.Sub(t.Cost())
			}
		}
	}

	e.cash = cash
	e.positions = positions
	return nil
}

// portfolioValueLocked values open positions at their entry prices.
// Cash already carries short-sale proceeds, so a short contributes its
// liability with a negative sign.
func (e *Engine) portfolioValueLocked() decimal.Decimal {
	total := e.cash
	for _, t := range e.positions {
		if t.Action.IsLong() {
			total = total.Add(t.Cost())
		} else {
			total = total.Sub(t.Cost())
		}
	}
	return total
}

// entryPrice picks the trade's entry from the recommendation: the quoted
// market price when the caller attached one, else the target price.
func entryPrice(rec models.Recommendation) (decimal.Decimal, error) {
	var entry decimal.Decimal
	switch {
	case rec.QuotedPrice != nil:
		entry = *rec.QuotedPrice
	case rec.TargetPrice != nil:
		entry = *rec.TargetPrice
	}
	if entry.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("recommendation for %s has no positive entry price", rec.Symbol)
	}
	return entry, nil
}

// Execute acts on a recommendation: sizes the position, persists the open
// trade and its pending track record under a shared pipeline id, and
// adjusts virtual cash. A non-positive entry price or insufficient cash
// fails the call with no partial trade.
func (e *Engine) Execute(ctx context.Context, rec models.Recommendation, agentID, pipelineID string) (*models.Trade, error) {
	if !rec.Action.Tradable() {
		return nil, fmt.Errorf("action %s does not produce a trade", rec.Action)
	}
	entry, err := entryPrice(rec)
	if err != nil {
		return nil, err
	}
	if pipelineID == "" {
		pipelineID = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	quantity, err := PositionSize(entry, rec.StopLoss, e.portfolioValueLocked(), e.cash, e.maxPositionPct, rec.Confidence)
	if err != nil {
		return nil, err
	}
	cost := entry.Mul(decimal.NewFromInt(quantity))
	if rec.Action.IsLong() && cost.GreaterThan(e.cash) {
		return nil, fmt.Errorf("insufficient cash: need %s, have %s", cost, e.cash)
	}

	now := e.now()
	confidence := rec.Confidence
	record := &models.TrackRecord{
		AgentID:        agentID,
		Symbol:         rec.Symbol,
		Recommendation: rec.Action,
		Confidence:     &confidence,
		TargetPrice:    rec.TargetPrice,
		StopLoss:       rec.StopLoss,
		RecommendedAt:  now,
		PipelineID:     pipelineID,
	}
	recordID, err := e.store.InsertTrackRecord(ctx, record)
	if err != nil {
		if errors.Is(err, store.ErrPendingExists) {
			return nil, fmt.Errorf("agent %s already has an open recommendation for %s: %w", agentID, rec.Symbol, err)
		}
		return nil, err
	}

	trade := &models.Trade{
		Symbol:        rec.Symbol,
		Action:        rec.Action,
		Quantity:      quantity,
		EntryPrice:    entry,
		EntryDate:     now,
		StopLoss:      rec.StopLoss,
		Status:        models.StatusOpen,
		RecommendedBy: agentID,
		Confidence:    &confidence,
		PipelineID:    pipelineID,
		Notes:         rec.Rationale,
	}
	if rec.TargetPrice != nil && !rec.TargetPrice.Equal(entry) {
		trade.TakeProfit = rec.TargetPrice
	}
	if _, err := e.store.InsertTrade(ctx, trade); err != nil {
		// Undo the record so the (agent, symbol) pair is not locked out
		// of future recommendations by an orphaned pending row.
		if delErr := e.store.DeleteTrackRecord(ctx, recordID); delErr != nil {
			e.log.Warn("failed to roll back track record", "record", recordID, "error", delErr)
		}
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	if err := e.refreshLocked(ctx); err != nil {
		return nil, err
	}
	e.log.Info("opened position",
		"symbol", trade.Symbol, "action", trade.Action, "quantity", quantity,
		"entry", entry.String(), "agent", agentID, "pipeline", pipelineID)
	return trade, nil
}

// CheckTriggers evaluates stop-loss and take-profit for every open trade
// with a current price, closing crossed positions at the configured level
// rather than the possibly gapped market price. Trades already terminal
// are never re-evaluated. It returns the trades it closed.
func (e *Engine) CheckTriggers(ctx context.Context, prices map[string]decimal.Decimal) ([]*models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := make([]*models.Trade, len(e.positions))
	copy(open, e.positions)

	var closed []*models.Trade
	for _, t := range open {
		price, ok := prices[t.Symbol]
		if !ok {
			continue
		}

		exit, status, triggered := triggerLevel(t, price)
		if !triggered {
			continue
		}

		done, err := e.closeLocked(ctx, t.ID, exit, e.now(), status)
		if err != nil {
			e.log.Warn("failed to close triggered trade", "trade", t.ID, "symbol", t.Symbol, "error", err)
			continue
		}
		closed = append(closed, done)
	}
	return closed, nil
}

// triggerLevel applies direction-aware comparisons: a long stops out on
// price <= stop and hits target on price >= target; a short is inverted.
func triggerLevel(t *models.Trade, price decimal.Decimal) (decimal.Decimal, models.TradeStatus, bool) {
	long := t.Action.IsLong()
	if t.StopLoss != nil {
		if (long && price.LessThanOrEqual(*t.StopLoss)) || (!long && price.GreaterThanOrEqual(*t.StopLoss)) {
			return *t.StopLoss, models.StatusStoppedOut, true
		}
	}
	if t.TakeProfit != nil {
		if (long && price.GreaterThanOrEqual(*t.TakeProfit)) || (!long && price.LessThanOrEqual(*t.TakeProfit)) {
			return *t.TakeProfit, models.StatusTargetHit, true
		}
	}
	return decimal.Decimal{}, "", false
}

// CloseWithOutcome closes the trade and resolves its paired pending track
// record. Resolution is best-effort: a missing record never fails the close.
func (e *Engine) CloseWithOutcome(ctx context.Context, tradeID int64, exitPrice decimal.Decimal, exitDate time.Time, status models.TradeStatus) (*models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked(ctx, tradeID, exitPrice, exitDate, status)
}

func (e *Engine) closeLocked(ctx context.Context, tradeID int64, exitPrice decimal.Decimal, exitDate time.Time, status models.TradeStatus) (*models.Trade, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("close requires a terminal status, got %s", status)
	}
	if exitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("exit price must be positive, got %s", exitPrice)
	}

	t, err := e.store.TradeByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusOpen {
		return nil, store.ErrAlreadyClosed
	}

	qty := decimal.NewFromInt(t.Quantity)
	var pnl decimal.Decimal
	if t.Action.IsLong() {
		pnl = exitPrice.Sub(t.EntryPrice).Mul(qty)
	} else {
		pnl = t.EntryPrice.Sub(exitPrice).Mul(qty)
	}
	pnlPct, _ := pnl.Div(t.Cost()).Mul(decimal.NewFromInt(100)).Float64()
	days := int(exitDate.Sub(t.EntryDate).Hours() / 24)

	t.ExitPrice = &exitPrice
	t.ExitDate = &exitDate
	t.Status = status
	t.PnLDollars = &pnl
	t.PnLPercent = &pnlPct
	t.HoldingDays = &days

	if err := e.store.CloseTrade(ctx, t); err != nil {
		return nil, err
	}
	e.resolver.Resolve(ctx, t)

	if err := e.refreshLocked(ctx); err != nil {
		return nil, err
	}
	e.log.Info("closed position",
		"symbol", t.Symbol, "status", status, "exit", exitPrice.String(),
		"pnl", pnl.String(), "pnl_pct", pnlPct)
	return t, nil
}

// OpenSymbols returns the distinct symbols with open exposure.
func (e *Engine) OpenSymbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(e.positions))
	var symbols []string
	for _, t := range e.positions {
		if _, ok := seen[t.Symbol]; ok {
			continue
		}
		seen[t.Symbol] = struct{}{}
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

// Portfolio derives the current portfolio state, valuing positions at the
// given current prices and falling back to entry prices for symbols
// without one. The state is recomputed every call and never persisted.
func (e *Engine) Portfolio(prices map[string]decimal.Decimal) models.PortfolioState {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.cash
	positions := make([]*models.Trade, len(e.positions))
	for i, t := range e.positions {
		positions[i] = t
		price := t.EntryPrice
		if p, ok := prices[t.Symbol]; ok {
			price = p
		}
		value := price.Mul(decimal.NewFromInt(t.Quantity))
		if t.Action.IsLong() {
			total = total.Add(value)
		} else {
			total = total.Sub(value)
		}
	}

	return models.PortfolioState{
		VirtualCash:     e.cash,
		Positions:       positions,
		StartingCapital: e.startingCap,
		TotalValue:      total,
		PnL:             total.Sub(e.startingCap),
	}
}
