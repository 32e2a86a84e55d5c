package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-advisors/internal/models"
)

// Both implementations must satisfy the same contract, so every test
// runs against both.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		s := NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "advisor.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func sampleTrade(symbol, agent string) *models.Trade {
	stop := decimal.RequireFromString("95")
	target := decimal.RequireFromString("120")
	confidence := 80.0
	return &models.Trade{
		Symbol:        symbol,
		Action:        models.ActionBuy,
		Quantity:      10,
		EntryPrice:    decimal.RequireFromString("100"),
		EntryDate:     time.Date(2025, 5, 1, 14, 30, 0, 0, time.UTC),
		StopLoss:      &stop,
		TakeProfit:    &target,
		RecommendedBy: agent,
		Confidence:    &confidence,
		PipelineID:    "run-1",
	}
}

func TestTradeRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		id, err := s.InsertTrade(ctx, sampleTrade("AAPL", "value-bot"))
		require.NoError(t, err)
		require.NotZero(t, id)

		got, err := s.TradeByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", got.Symbol)
		assert.Equal(t, models.StatusOpen, got.Status)
		assert.True(t, got.EntryPrice.Equal(decimal.RequireFromString("100")))
		require.NotNil(t, got.StopLoss)
		assert.True(t, got.StopLoss.Equal(decimal.RequireFromString("95")))
		assert.Equal(t, "run-1", got.PipelineID)
	})
}

func TestTradeByIDNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.TradeByID(context.Background(), 42)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCloseTradeIsTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		trade := sampleTrade("AAPL", "value-bot")
		_, err := s.InsertTrade(ctx, trade)
		require.NoError(t, err)

		exit := decimal.RequireFromString("95")
		exitDate := time.Date(2025, 5, 10, 20, 0, 0, 0, time.UTC)
		pnl := decimal.RequireFromString("-50")
		pnlPct := -5.0
		days := 9
		trade.ExitPrice = &exit
		trade.ExitDate = &exitDate
		trade.Status = models.StatusStoppedOut
		trade.PnLDollars = &pnl
		trade.PnLPercent = &pnlPct
		trade.HoldingDays = &days

		require.NoError(t, s.CloseTrade(ctx, trade))

		got, err := s.TradeByID(ctx, trade.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStoppedOut, got.Status)
		require.NotNil(t, got.PnLDollars)
		assert.True(t, got.PnLDollars.Equal(pnl))

		// Second close fails and changes nothing.
		err = s.CloseTrade(ctx, trade)
		assert.ErrorIs(t, err, ErrAlreadyClosed)
		again, err := s.TradeByID(ctx, trade.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusStoppedOut, again.Status)
		assert.True(t, again.PnLDollars.Equal(pnl))
	})
}

func TestOpenTradesFiltersTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		first := sampleTrade("AAPL", "value-bot")
		_, err := s.InsertTrade(ctx, first)
		require.NoError(t, err)
		_, err = s.InsertTrade(ctx, sampleTrade("MSFT", "growth-bot"))
		require.NoError(t, err)

		exit := decimal.RequireFromString("120")
		now := time.Now().UTC()
		first.ExitPrice = &exit
		first.ExitDate = &now
		first.Status = models.StatusTargetHit
		require.NoError(t, s.CloseTrade(ctx, first))

		open, err := s.OpenTrades(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "MSFT", open[0].Symbol)

		all, err := s.AllTrades(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func sampleRecord(agent, symbol, pipeline string) *models.TrackRecord {
	confidence := 75.0
	target := decimal.RequireFromString("120")
	return &models.TrackRecord{
		AgentID:        agent,
		Symbol:         symbol,
		Recommendation: models.ActionBuy,
		Confidence:     &confidence,
		TargetPrice:    &target,
		RecommendedAt:  time.Date(2025, 5, 1, 14, 30, 0, 0, time.UTC),
		PipelineID:     pipeline,
	}
}

func TestPendingPairIsUnique(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.InsertTrackRecord(ctx, sampleRecord("value-bot", "AAPL", "run-1"))
		require.NoError(t, err)

		_, err = s.InsertTrackRecord(ctx, sampleRecord("value-bot", "AAPL", "run-2"))
		assert.ErrorIs(t, err, ErrPendingExists)

		// A different symbol or agent is fine.
		_, err = s.InsertTrackRecord(ctx, sampleRecord("value-bot", "MSFT", "run-3"))
		assert.NoError(t, err)
		_, err = s.InsertTrackRecord(ctx, sampleRecord("growth-bot", "AAPL", "run-4"))
		assert.NoError(t, err)
	})
}

func TestDeleteTrackRecordFreesPendingPair(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		id, err := s.InsertTrackRecord(ctx, sampleRecord("value-bot", "AAPL", "run-1"))
		require.NoError(t, err)
		require.NoError(t, s.DeleteTrackRecord(ctx, id))

		_, err = s.PendingTrackRecord(ctx, "value-bot", "AAPL")
		assert.ErrorIs(t, err, ErrNotFound)

		// The pair is free for a fresh pending record again.
		_, err = s.InsertTrackRecord(ctx, sampleRecord("value-bot", "AAPL", "run-2"))
		assert.NoError(t, err)

		assert.ErrorIs(t, s.DeleteTrackRecord(ctx, id), ErrNotFound)
	})
}

func TestResolveTrackRecordOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		rec := sampleRecord("value-bot", "AAPL", "run-1")
		_, err := s.InsertTrackRecord(ctx, rec)
		require.NoError(t, err)

		actual := 4.2
		days := 9
		resolvedAt := time.Date(2025, 5, 10, 20, 0, 0, 0, time.UTC)
		rec.Outcome = models.OutcomeWin
		rec.ActualReturn = &actual
		rec.PeakReturn = &actual
		rec.DaysToOutcome = &days
		rec.ResolvedAt = &resolvedAt
		require.NoError(t, s.ResolveTrackRecord(ctx, rec))

		records, err := s.TrackRecordsByAgent(ctx, "value-bot")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, models.OutcomeWin, records[0].Outcome)
		require.NotNil(t, records[0].ActualReturn)
		assert.InDelta(t, 4.2, *records[0].ActualReturn, 1e-9)

		err = s.ResolveTrackRecord(ctx, rec)
		assert.ErrorIs(t, err, ErrAlreadyResolved)
	})
}

func TestPendingLookupByPipelineAndPair(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		rec := sampleRecord("value-bot", "AAPL", "run-7")
		_, err := s.InsertTrackRecord(ctx, rec)
		require.NoError(t, err)

		byPipeline, err := s.PendingTrackRecordByPipeline(ctx, "run-7")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, byPipeline.ID)

		byPair, err := s.PendingTrackRecord(ctx, "value-bot", "AAPL")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, byPair.ID)

		_, err = s.PendingTrackRecord(ctx, "value-bot", "TSLA")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.PendingTrackRecordByPipeline(ctx, "run-404")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAgentIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.InsertTrackRecord(ctx, sampleRecord("value-bot", "AAPL", "r1"))
		require.NoError(t, err)
		_, err = s.InsertTrackRecord(ctx, sampleRecord("growth-bot", "MSFT", "r2"))
		require.NoError(t, err)

		ids, err := s.AgentIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"growth-bot", "value-bot"}, ids)
	})
}
