package trading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-advisors/internal/models"
	"stock-advisors/internal/store"
)

func closedTrade(status models.TradeStatus, pnlPct float64) *models.Trade {
	exitDate := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	exitPrice := d("155")
	days := 8
	return &models.Trade{
		ID:            1,
		Symbol:        "AAPL",
		Action:        models.ActionBuy,
		Quantity:      10,
		EntryPrice:    d("150"),
		EntryDate:     exitDate.AddDate(0, 0, -days),
		ExitPrice:     &exitPrice,
		ExitDate:      &exitDate,
		Status:        status,
		PnLPercent:    &pnlPct,
		HoldingDays:   &days,
		RecommendedBy: "bull",
		PipelineID:    "pipe-1",
	}
}

func seedPending(t *testing.T, st store.Store, pipelineID string) *models.TrackRecord {
	t.Helper()
	r := &models.TrackRecord{
		AgentID:        "bull",
		Symbol:         "AAPL",
		Recommendation: models.ActionBuy,
		RecommendedAt:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		PipelineID:     pipelineID,
	}
	_, err := st.InsertTrackRecord(context.Background(), r)
	require.NoError(t, err)
	return r
}

func TestResolveByPipelineID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()
	record := seedPending(t, st, "pipe-1")

	NewOutcomeResolver(st).Resolve(ctx, closedTrade(models.StatusTargetHit, 3.33))

	records, err := st.TrackRecordsByAgent(ctx, "bull")
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, models.OutcomeTargetHit, got.Outcome)
	require.NotNil(t, got.ActualReturn)
	assert.InDelta(t, 3.33, *got.ActualReturn, 1e-9)
	require.NotNil(t, got.DaysToOutcome)
	assert.Equal(t, 8, *got.DaysToOutcome)
	require.NotNil(t, got.PeakReturn)
	assert.InDelta(t, 3.33, *got.PeakReturn, 1e-9)
	require.NotNil(t, got.WorstDrawdown)
	assert.Zero(t, *got.WorstDrawdown)
}

func TestResolveFallsBackToAgentSymbolPair(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()
	seedPending(t, st, "some-other-pipe")

	trade := closedTrade(models.StatusClosed, -4)
	trade.PipelineID = ""
	NewOutcomeResolver(st).Resolve(ctx, trade)

	records, err := st.TrackRecordsByAgent(ctx, "bull")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeLoss, records[0].Outcome)
	require.NotNil(t, records[0].WorstDrawdown)
	assert.InDelta(t, -4, *records[0].WorstDrawdown, 1e-9)
	require.NotNil(t, records[0].PeakReturn)
	assert.Zero(t, *records[0].PeakReturn)
}

func TestResolveNoPairedRecordIsSilent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()

	// No record in the store at all; the resolver must not error or
	// create anything.
	NewOutcomeResolver(st).Resolve(ctx, closedTrade(models.StatusClosed, 2))

	agents, err := st.AgentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestResolveSkipsOpenTrades(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	defer st.Close()
	seedPending(t, st, "pipe-1")

	trade := closedTrade(models.StatusOpen, 2)
	NewOutcomeResolver(st).Resolve(ctx, trade)

	record, err := st.PendingTrackRecordByPipeline(ctx, "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePending, record.Outcome)
}

func TestClassifyReturnBand(t *testing.T) {
	cases := []struct {
		name   string
		status models.TradeStatus
		pnlPct float64
		want   models.Outcome
	}{
		{"stop maps directly", models.StatusStoppedOut, -6, models.OutcomeStoppedOut},
		{"target maps directly", models.StatusTargetHit, 9, models.OutcomeTargetHit},
		{"expiry maps directly", models.StatusExpired, 1, models.OutcomeExpired},
		{"manual close big gain", models.StatusClosed, 2.1, models.OutcomeWin},
		{"manual close big loss", models.StatusClosed, -0.6, models.OutcomeLoss},
		{"manual close tiny gain", models.StatusClosed, 0.4, models.OutcomeBreakeven},
		{"manual close tiny loss", models.StatusClosed, -0.5, models.OutcomeBreakeven},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(closedTrade(tc.status, tc.pnlPct)))
		})
	}
}
