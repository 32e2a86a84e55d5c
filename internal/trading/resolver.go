package trading

import (
	"context"
	"errors"
	"log/slog"

	"stock-advisors/internal/models"
	"stock-advisors/internal/store"
)

// returnNoiseBand is the absolute-percent band inside which a closed
// trade counts as breakeven rather than a win or loss.
const returnNoiseBand = 0.5

// OutcomeResolver turns closed trades into resolved track records so
// that agent statistics reflect how recommendations actually played out.
type OutcomeResolver struct {
	store store.Store
	log   *slog.Logger
}

// NewOutcomeResolver builds a resolver over st.
func NewOutcomeResolver(st store.Store) *OutcomeResolver {
	return &OutcomeResolver{
		store: st,
		log:   slog.Default().With("component", "resolver"),
	}
}

// Resolve finds the pending track record paired with the closed trade
// and stamps it with the trade's outcome. Trades with no paired record
// (manual entries, records already resolved) are skipped without error.
func (r *OutcomeResolver) Resolve(ctx context.Context, t *models.Trade) {
	if !t.Status.Terminal() {
		return
	}

	record, err := r.pendingFor(ctx, t)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warn("track record lookup failed", "trade", t.ID, "symbol", t.Symbol, "error", err)
		}
		return
	}

	record.Outcome = classify(t)
	record.ResolvedAt = t.ExitDate
	record.ActualReturn = t.PnLPercent
	record.DaysToOutcome = t.HoldingDays
	if t.PnLPercent != nil {
		// Intraday paths are not tracked; approximate the extremes
		// from the realized return.
		peak := *t.PnLPercent
		if peak < 0 {
			peak = 0
		}
		drawdown := *t.PnLPercent
		if drawdown > 0 {
			drawdown = 0
		}
		record.PeakReturn = &peak
		record.WorstDrawdown = &drawdown
	}

	if err := r.store.ResolveTrackRecord(ctx, record); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			return
		}
		r.log.Warn("track record resolution failed", "record", record.ID, "trade", t.ID, "error", err)
	}
}

// pendingFor matches by pipeline id first, then falls back to the most
// recent pending record for the recommending agent and symbol.
func (r *OutcomeResolver) pendingFor(ctx context.Context, t *models.Trade) (*models.TrackRecord, error) {
	if t.PipelineID != "" {
		record, err := r.store.PendingTrackRecordByPipeline(ctx, t.PipelineID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if t.RecommendedBy == "" {
		return nil, store.ErrNotFound
	}
	return r.store.PendingTrackRecord(ctx, t.RecommendedBy, t.Symbol)
}

// classify maps a terminal trade status to a track record outcome. Exits
// without an explicit trigger are graded by realized return, with a
// small band around zero counting as breakeven.
func classify(t *models.Trade) models.Outcome {
	switch t.Status {
	case models.StatusStoppedOut:
		return models.OutcomeStoppedOut
	case models.StatusTargetHit:
		return models.OutcomeTargetHit
	case models.StatusExpired:
		return models.OutcomeExpired
	}
	if t.PnLPercent == nil {
		return models.OutcomeBreakeven
	}
	switch {
	case *t.PnLPercent > returnNoiseBand:
		return models.OutcomeWin
	case *t.PnLPercent < -returnNoiseBand:
		return models.OutcomeLoss
	default:
		return models.OutcomeBreakeven
	}
}
