// Package performance aggregates resolved track records into per-agent
// statistics and ranks agents by a composite score.
package performance

import (
	"context"
	"math"
	"sort"

	"stock-advisors/internal/models"
	"stock-advisors/internal/store"
)

// Composite score weights. Sharpe and profit factor are rescaled so the
// four terms land in comparable ranges before weighting.
const (
	weightWinRate      = 0.3
	weightMeanReturn   = 0.3
	weightSharpe       = 0.2
	weightProfitFactor = 0.2

	sharpeScale       = 10
	profitFactorScale = 5
	profitFactorCap   = 10
)

// AgentStats summarizes an agent's resolved recommendations.
type AgentStats struct {
	AgentID        string  `json:"agent_id"`
	Total          int     `json:"total"`
	Resolved       int     `json:"resolved"`
	Pending        int     `json:"pending"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	Breakeven      int     `json:"breakeven"`
	WinRate        float64 `json:"win_rate"`    // percent of resolved
	MeanReturn     float64 `json:"mean_return"` // percent
	AvgWinReturn   float64 `json:"avg_win_return"`
	AvgLossReturn  float64 `json:"avg_loss_return"`
	TotalReturn    float64 `json:"total_return"`
	BestReturn     float64 `json:"best_return"`
	WorstReturn    float64 `json:"worst_return"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MeanConfidence float64 `json:"mean_confidence"`
	Sharpe         float64 `json:"sharpe"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgDaysHeld    float64 `json:"avg_days_held"`
	CompositeScore float64 `json:"composite_score"`
}

// Compute derives statistics from an agent's track records. Agents with
// no resolved records get zeroed statistics, never NaN.
func Compute(agentID string, records []*models.TrackRecord) AgentStats {
	s := AgentStats{AgentID: agentID, Total: len(records)}

	var returns []float64
	var daysSum, daysCount int
	var grossWin, grossLoss float64
	var winCount, lossCount int
	var confSum float64
	var confCount int
	for _, r := range records {
		if r.Outcome == models.OutcomePending || r.Outcome == "" {
			s.Pending++
			continue
		}
		s.Resolved++
		switch {
		case r.Outcome.Favorable():
			s.Wins++
		case r.Outcome.Unfavorable():
			s.Losses++
		default:
			s.Breakeven++
		}
		if r.ActualReturn != nil {
			ret := *r.ActualReturn
			returns = append(returns, ret)
			if ret > 0 {
				grossWin += ret
				winCount++
			} else {
				grossLoss += ret
				lossCount++
			}
		}
		if r.WorstDrawdown != nil && *r.WorstDrawdown < s.MaxDrawdown {
			s.MaxDrawdown = *r.WorstDrawdown
		}
		if r.Confidence != nil {
			confSum += *r.Confidence
			confCount++
		}
		if r.DaysToOutcome != nil {
			daysSum += *r.DaysToOutcome
			daysCount++
		}
	}
	if s.Resolved == 0 {
		return s
	}

	s.WinRate = float64(s.Wins) / float64(s.Resolved) * 100
	if daysCount > 0 {
		s.AvgDaysHeld = float64(daysSum) / float64(daysCount)
	}
	if confCount > 0 {
		s.MeanConfidence = confSum / float64(confCount)
	}
	if winCount > 0 {
		s.AvgWinReturn = grossWin / float64(winCount)
	}
	if lossCount > 0 {
		s.AvgLossReturn = grossLoss / float64(lossCount)
	}
	if len(returns) > 0 {
		s.BestReturn = returns[0]
		s.WorstReturn = returns[0]
		for _, ret := range returns {
			s.TotalReturn += ret
			s.BestReturn = math.Max(s.BestReturn, ret)
			s.WorstReturn = math.Min(s.WorstReturn, ret)
		}
		s.MeanReturn = s.TotalReturn / float64(len(returns))
	}
	s.Sharpe = sharpe(returns)
	s.ProfitFactor = profitFactor(grossWin, grossLoss)
	s.CompositeScore = composite(s)
	return s
}

// sharpe is mean over sample standard deviation, 0 when fewer than two
// samples or zero variance.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	variance := ss / float64(len(returns)-1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// profitFactor is gross wins over absolute gross losses. With no losses
// it degrades to the gross win total; with no returns at all it is 0.
func profitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss == 0 {
		return grossWin
	}
	return grossWin / math.Abs(grossLoss)
}

func composite(s AgentStats) float64 {
	pf := math.Min(s.ProfitFactor, profitFactorCap)
	return weightWinRate*s.WinRate +
		weightMeanReturn*s.MeanReturn +
		weightSharpe*sharpeScale*s.Sharpe +
		weightProfitFactor*profitFactorScale*pf
}

// Leaderboard computes statistics for every agent in the store and ranks
// those with at least one resolved record by composite score, best first.
// Ties break alphabetically by agent id so the ordering is stable.
func Leaderboard(ctx context.Context, st store.Store) ([]AgentStats, error) {
	agents, err := st.AgentIDs(ctx)
	if err != nil {
		return nil, err
	}

	var board []AgentStats
	for _, id := range agents {
		records, err := st.TrackRecordsByAgent(ctx, id)
		if err != nil {
			return nil, err
		}
		stats := Compute(id, records)
		if stats.Resolved == 0 {
			continue
		}
		board = append(board, stats)
	}

	sort.Slice(board, func(i, j int) bool {
		if board[i].CompositeScore != board[j].CompositeScore {
			return board[i].CompositeScore > board[j].CompositeScore
		}
		return board[i].AgentID < board[j].AgentID
	})
	return board, nil
}

// StatsFor computes one agent's statistics from the store.
func StatsFor(ctx context.Context, st store.Store, agentID string) (AgentStats, error) {
	records, err := st.TrackRecordsByAgent(ctx, agentID)
	if err != nil {
		return AgentStats{}, err
	}
	return Compute(agentID, records), nil
}
