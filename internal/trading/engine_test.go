package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-advisors/internal/models"
	"stock-advisors/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	e, err := NewEngine(context.Background(), st, d("100000"), 0.10)
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC) }
	return e, st
}

func buyRec(symbol string) models.Recommendation {
	return models.Recommendation{
		Symbol:      symbol,
		Action:      models.ActionBuy,
		Confidence:  80,
		QuotedPrice: dp("150"),
		TargetPrice: dp("175"),
		StopLoss:    dp("140"),
	}
}

func TestExecuteOpensTradeAndRecord(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)

	trade, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, int64(66), trade.Quantity)
	assert.True(t, trade.EntryPrice.Equal(d("150")))
	assert.Equal(t, models.StatusOpen, trade.Status)
	assert.Equal(t, "pipe-1", trade.PipelineID)
	require.NotNil(t, trade.TakeProfit)
	assert.True(t, trade.TakeProfit.Equal(d("175")))

	record, err := st.PendingTrackRecordByPipeline(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, "bull", record.AgentID)
	assert.Equal(t, models.OutcomePending, record.Outcome)

	state := e.Portfolio(nil)
	assert.True(t, state.VirtualCash.Equal(d("90100")), "cash %s", state.VirtualCash)
	assert.True(t, state.TotalValue.Equal(d("100000")))
}

func TestExecuteGeneratesPipelineID(t *testing.T) {
	e, _ := newTestEngine(t)

	trade, err := e.Execute(context.Background(), buyRec("AAPL"), "bull", "")
	require.NoError(t, err)
	assert.NotEmpty(t, trade.PipelineID)
}

func TestExecuteRejectsHold(t *testing.T) {
	e, _ := newTestEngine(t)

	rec := buyRec("AAPL")
	rec.Action = models.ActionHold
	_, err := e.Execute(context.Background(), rec, "bull", "")
	require.Error(t, err)
}

func TestExecuteRejectsMissingEntryPrice(t *testing.T) {
	e, _ := newTestEngine(t)

	rec := models.Recommendation{Symbol: "AAPL", Action: models.ActionBuy, Confidence: 70}
	_, err := e.Execute(context.Background(), rec, "bull", "")
	require.Error(t, err)
}

func TestExecuteFallsBackToTargetPrice(t *testing.T) {
	e, _ := newTestEngine(t)

	rec := buyRec("AAPL")
	rec.QuotedPrice = nil
	trade, err := e.Execute(context.Background(), rec, "bull", "")
	require.NoError(t, err)
	assert.True(t, trade.EntryPrice.Equal(d("175")))
	assert.Nil(t, trade.TakeProfit, "target equal to entry carries no take-profit")
}

func TestExecuteInsufficientCash(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()

	e, err := NewEngine(ctx, st, d("100"), 1.0)
	require.NoError(t, err)

	rec := models.Recommendation{
		Symbol:      "BRK",
		Action:      models.ActionBuy,
		Confidence:  90,
		QuotedPrice: dp("500"),
	}
	_, err = e.Execute(ctx, rec, "bull", "")
	require.ErrorContains(t, err, "insufficient cash")

	trades, err := st.AllTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

type flakyTradeStore struct {
	*store.MemoryStore
	failures int
}

func (s *flakyTradeStore) InsertTrade(ctx context.Context, tr *models.Trade) (int64, error) {
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("disk full")
	}
	return s.MemoryStore.InsertTrade(ctx, tr)
}

func TestExecuteTradeInsertFailureLeavesNoOrphanRecord(t *testing.T) {
	ctx := context.Background()
	st := &flakyTradeStore{MemoryStore: store.NewMemoryStore(), failures: 1}
	defer st.Close()

	e, err := NewEngine(ctx, st, d("100000"), 0.10)
	require.NoError(t, err)

	_, err = e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.ErrorContains(t, err, "persist trade")

	// The failed execute must not leave a pending record behind.
	_, err = st.PendingTrackRecord(ctx, "bull", "AAPL")
	require.ErrorIs(t, err, store.ErrNotFound)

	// And the pair is free for a clean retry.
	trade, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-2")
	require.NoError(t, err)
	assert.Equal(t, "pipe-2", trade.PipelineID)
}

func TestExecuteDuplicatePendingRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	_, err = e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-2")
	require.ErrorIs(t, err, store.ErrPendingExists)
}

func TestCheckTriggersStopLossClosesAtStop(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)

	trade, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	// Price gapped through the stop; the close still happens at the
	// configured 140 level.
	closed, err := e.CheckTriggers(ctx, map[string]decimal.Decimal{"AAPL": d("94")})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, models.StatusStoppedOut, closed[0].Status)
	require.NotNil(t, closed[0].ExitPrice)
	assert.True(t, closed[0].ExitPrice.Equal(d("140")))

	stored, err := st.TradeByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStoppedOut, stored.Status)
	require.NotNil(t, stored.PnLDollars)
	assert.True(t, stored.PnLDollars.Equal(d("-660")))
}

func TestCheckTriggersTakeProfit(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	closed, err := e.CheckTriggers(ctx, map[string]decimal.Decimal{"AAPL": d("180")})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, models.StatusTargetHit, closed[0].Status)
	assert.True(t, closed[0].ExitPrice.Equal(d("175")))
}

func TestCheckTriggersShortDirection(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	rec := models.Recommendation{
		Symbol:      "XOM",
		Action:      models.ActionSell,
		Confidence:  75,
		QuotedPrice: dp("100"),
		TargetPrice: dp("80"),
		StopLoss:    dp("110"),
	}
	_, err := e.Execute(ctx, rec, "bear", "pipe-s")
	require.NoError(t, err)

	// Rising price is adverse for a short.
	closed, err := e.CheckTriggers(ctx, map[string]decimal.Decimal{"XOM": d("112")})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, models.StatusStoppedOut, closed[0].Status)
	assert.True(t, closed[0].ExitPrice.Equal(d("110")))
	require.NotNil(t, closed[0].PnLDollars)
	assert.True(t, closed[0].PnLDollars.Sign() < 0)
}

func TestCheckTriggersNoCrossingNoClose(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	closed, err := e.CheckTriggers(ctx, map[string]decimal.Decimal{"AAPL": d("150")})
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestCheckTriggersIgnoresUnknownSymbols(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	closed, err := e.CheckTriggers(ctx, map[string]decimal.Decimal{"MSFT": d("1")})
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestCloseWithOutcomeOnce(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)

	trade, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	exit := time.Date(2026, 3, 9, 21, 0, 0, 0, time.UTC)
	closed, err := e.CloseWithOutcome(ctx, trade.ID, d("160"), exit, models.StatusClosed)
	require.NoError(t, err)
	require.NotNil(t, closed.PnLDollars)
	assert.True(t, closed.PnLDollars.Equal(d("660")))
	require.NotNil(t, closed.HoldingDays)
	assert.Equal(t, 7, *closed.HoldingDays)

	// Resolution happened as part of the close.
	record, err := st.PendingTrackRecordByPipeline(ctx, "pipe-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, record)

	_, err = e.CloseWithOutcome(ctx, trade.ID, d("160"), exit, models.StatusClosed)
	require.ErrorIs(t, err, store.ErrAlreadyClosed)
}

func TestCloseWithOutcomeRejectsNonTerminal(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	trade, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)

	_, err = e.CloseWithOutcome(ctx, trade.ID, d("160"), time.Now(), models.StatusOpen)
	require.Error(t, err)
}

func TestCashReplayAcrossRestart(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine(t)

	trade, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)
	_, err = e.CloseWithOutcome(ctx, trade.ID, d("160"), time.Now(), models.StatusClosed)
	require.NoError(t, err)

	// A fresh engine over the same store reconstructs identical cash.
	fresh, err := NewEngine(ctx, st, d("100000"), 0.10)
	require.NoError(t, err)

	want := e.Portfolio(nil)
	got := fresh.Portfolio(nil)
	assert.True(t, got.VirtualCash.Equal(want.VirtualCash))
	assert.True(t, got.VirtualCash.Equal(d("100660")))
	assert.Empty(t, got.Positions)
}

func TestOpenSymbolsDeduplicates(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Execute(ctx, buyRec("AAPL"), "bull", "pipe-1")
	require.NoError(t, err)
	_, err = e.Execute(ctx, buyRec("AAPL"), "bear", "pipe-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL"}, e.OpenSymbols())
}
